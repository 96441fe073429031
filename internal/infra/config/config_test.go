package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadGroupsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "groups.toml")
	data := "[[group]]\nname = \"Retail All-Stars\"\n\n[[group]]\nname = \"  \"\n\n[[group]]\nname = \"Winwise Agent Support\"\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("запись файла: %v", err)
	}
	groups, err := LoadGroups(AppConfig{GroupsFile: path, TargetGroups: []string{"ignored"}})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(groups) != 2 || groups[0] != "Retail All-Stars" || groups[1] != "Winwise Agent Support" {
		t.Fatalf("неожиданные группы: %v", groups)
	}
}

func TestLoadGroupsFromEnvList(t *testing.T) {
	groups, err := LoadGroups(AppConfig{TargetGroups: []string{" a ", "", "b"}})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(groups) != 2 || groups[0] != "a" {
		t.Fatalf("неожиданные группы: %v", groups)
	}
}

func TestLoadGroupsEmpty(t *testing.T) {
	if _, err := LoadGroups(AppConfig{}); err == nil {
		t.Fatalf("ожидали ошибку для пустого списка")
	}
}

func TestLocation(t *testing.T) {
	loc, err := AppConfig{TZ: "Local"}.Location()
	if err != nil || loc == nil {
		t.Fatalf("ожидали локальный пояс: %v", err)
	}
	if _, err := (AppConfig{TZ: "Nowhere/Invalid"}).Location(); err == nil {
		t.Fatalf("ожидали ошибку для неизвестного пояса")
	}
}
