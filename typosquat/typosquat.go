// Package typosquat implements the Typosquat Checker (spec §4.10): a
// non-blocking heuristic that flags newly published names suspiciously
// close to an already-popular crate.
package typosquat

import (
	"context"
	"strings"

	"github.com/quay/zlog"
)

// alphabet enumerates the characters considered for confusable
// substitution — the same character class crate names are restricted to.
const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz1234567890-_"

// suffixSeparators are the separators considered when adding or removing a
// common suffix.
var suffixSeparators = []string{"-", "_"}

// suffixes are the common crate-name suffixes §4.10 names explicitly.
var suffixes = []string{"api", "cargo", "cli", "core", "lib", "rs", "rust", "sys"}

// confusables maps a character to the characters a typing or visual
// mistake is likely to substitute for it, adapted from a long-standing
// crates.io easily-confused-characters table covering QWERTY, QWERTZ, and
// AZERTY keyboards plus common visual lookalikes.
var confusables = map[rune][]string{
	'1': {"2", "q", "i", "l"},
	'2': {"1", "q", "w", "3"},
	'3': {"2", "w", "e", "4"},
	'4': {"3", "e", "r", "5"},
	'5': {"4", "r", "t", "6", "s"},
	'6': {"5", "t", "y", "7"},
	'7': {"6", "y", "u", "8"},
	'8': {"7", "u", "i", "9"},
	'9': {"8", "i", "o", "0"},
	'0': {"9", "o", "p", "-"},
	'-': {"_", "0", "p", ".", ""},
	'_': {"-", "0", "p", ".", ""},
	'q': {"1", "2", "w", "a", "s", "z"},
	'w': {"2", "3", "e", "s", "a", "q", "vv", "x"},
	'e': {"3", "4", "r", "d", "s", "w", "z"},
	'r': {"4", "5", "t", "f", "d", "e"},
	't': {"5", "6", "y", "g", "f", "r"},
	'y': {"6", "7", "u", "h", "t", "i", "a", "s", "x"},
	'u': {"7", "8", "i", "j", "y", "v"},
	'i': {"1", "8", "9", "o", "l", "k", "j", "u", "y"},
	'o': {"9", "0", "p", "l", "i"},
	'p': {"0", "-", "o"},
	'a': {"q", "w", "s", "z", "1", "2"},
	's': {"w", "d", "x", "z", "a", "5", "q"},
	'd': {"e", "r", "f", "c", "x", "s"},
	'f': {"r", "g", "v", "c", "d"},
	'g': {"t", "h", "b", "v", "f"},
	'h': {"y", "j", "n", "b", "g"},
	'j': {"u", "i", "k", "m", "n", "h"},
	'k': {"i", "o", "l", "m", "j"},
	'l': {"i", "o", "p", "k", "1"},
	'z': {"a", "s", "x", "6", "7", "u", "h", "t", "i", "e", "2", "3"},
	'x': {"z", "s", "d", "c", "w"},
	'c': {"x", "d", "f", "v"},
	'v': {"c", "f", "g", "b", "u"},
	'b': {"v", "g", "h", "n"},
	'n': {"b", "h", "j", "m"},
	'm': {"n", "j", "k", "rn"},
	'.': {"-", "_", ""},
}

// Candidates generates §4.10's three families of nearby names for name:
// single-character confusable substitutions, common-suffix add/remove,
// and "-"/"_" substitution. The result holds no duplicates but may contain
// the lowercased name itself; callers compare against a corpus and ignore
// self-matches.
func Candidates(name string) []string {
	lower := strings.ToLower(name)
	seen := map[string]struct{}{}
	var out []string
	add := func(c string) {
		if c == "" {
			return
		}
		if _, ok := seen[c]; ok {
			return
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}

	runes := []rune(lower)
	for i, r := range runes {
		for _, sub := range confusables[r] {
			add(string(runes[:i]) + sub + string(runes[i+1:]))
		}
	}

	for _, suffix := range suffixes {
		for _, sep := range suffixSeparators {
			add(lower + sep + suffix)
			add(suffix + sep + lower)
			for _, trimmed := range trimSuffix(lower, sep, suffix) {
				add(trimmed)
			}
		}
	}

	if strings.ContainsAny(lower, "-_") {
		add(strings.ReplaceAll(lower, "-", "_"))
		add(strings.ReplaceAll(lower, "_", "-"))
	}

	return out
}

func trimSuffix(name, sep, suffix string) []string {
	var out []string
	tail := sep + suffix
	if strings.HasSuffix(name, tail) {
		out = append(out, strings.TrimSuffix(name, tail))
	}
	head := suffix + sep
	if strings.HasPrefix(name, head) {
		out = append(out, strings.TrimPrefix(name, head))
	}
	return out
}

// Corpus supplies the set of already-popular crate names to compare
// candidates against — §4.10's "top N most-downloaded crates".
type Corpus interface {
	TopCrateNames(ctx context.Context, limit int) ([]string, error)
}

// TopCrateCount is the corpus size §4.10 specifies.
const TopCrateCount = 3000

// Sink records a non-blocking typosquat warning. It mirrors a Sentry-like
// alerting integration: a failure to deliver the alert must never affect
// the publish that triggered it.
type Sink interface {
	Alert(ctx context.Context, newCrate, collidesWith string) error
}

// Checker runs Candidates against a Corpus and reports collisions to a
// Sink, matching §4.10's "never block the publish" requirement by design:
// Check returns nothing a caller is expected to act on synchronously.
type Checker struct {
	Corpus Corpus
	Sink   Sink
}

// New constructs a Checker.
func New(corpus Corpus, sink Sink) *Checker {
	return &Checker{Corpus: corpus, Sink: sink}
}

// Check compares name's candidate set against the top-crates corpus and
// alerts on every collision found. Corpus or alert-delivery failures are
// logged, never returned, since this check must never block a publish.
func (c *Checker) Check(ctx context.Context, name string) {
	top, err := c.Corpus.TopCrateNames(ctx, TopCrateCount)
	if err != nil {
		zlog.Warn(ctx).Err(err).Str("crate", name).Msg("typosquat check: failed to load corpus")
		return
	}
	index := make(map[string]struct{}, len(top))
	for _, n := range top {
		index[strings.ToLower(n)] = struct{}{}
	}

	lower := strings.ToLower(name)
	for _, candidate := range Candidates(name) {
		if candidate == lower {
			continue
		}
		if _, collides := index[candidate]; !collides {
			continue
		}
		if err := c.Sink.Alert(ctx, name, candidate); err != nil {
			zlog.Warn(ctx).Err(err).Str("crate", name).Str("collides_with", candidate).Msg("typosquat check: failed to deliver alert")
		}
	}
}
