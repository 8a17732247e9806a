package config

import "testing"

func TestFromEnvDefaults(t *testing.T) {
	env := map[string]string{"DATABASE_URL": "postgres://x"}
	c, err := FromEnv(func(k string) string { return env[k] })
	if err != nil {
		t.Fatal(err)
	}
	if c.MaxUploadSize != DefaultMaxUploadSize {
		t.Errorf("MaxUploadSize = %d, want default", c.MaxUploadSize)
	}
	if c.ReadOnly {
		t.Errorf("ReadOnly should default false")
	}
}

func TestFromEnvRequiresDatabaseURL(t *testing.T) {
	_, err := FromEnv(func(string) string { return "" })
	if err == nil {
		t.Fatal("expected error when DATABASE_URL is unset")
	}
}

func TestFromEnvAdminUsersCSV(t *testing.T) {
	env := map[string]string{
		"DATABASE_URL":   "postgres://x",
		"GH_ADMIN_USERS": "alice,bob, carol",
	}
	c, err := FromEnv(func(k string) string { return env[k] })
	if err != nil {
		t.Fatal(err)
	}
	if len(c.GitHubAdminUsers) != 3 {
		t.Fatalf("GitHubAdminUsers = %v", c.GitHubAdminUsers)
	}
}
