package models

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// accountsFile is the on-disk shape of the accounts file
type accountsFile struct {
	Accounts []Account `json:"accounts"`
}

// LoadAccounts reads the monitored accounts from a JSON file. Usernames are
// trimmed and deduplicated; an unreadable or empty accounts file is a hard
// error since without it there is nothing to monitor.
func LoadAccounts(path string) ([]Account, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read accounts file: %w", err)
	}

	var file accountsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse accounts file: %w", err)
	}

	seen := make(map[string]bool, len(file.Accounts))
	accounts := make([]Account, 0, len(file.Accounts))
	for _, a := range file.Accounts {
		a.Username = strings.TrimPrefix(strings.TrimSpace(a.Username), "@")
		if a.Username == "" || seen[a.Username] {
			continue
		}
		seen[a.Username] = true
		accounts = append(accounts, a)
	}

	if len(accounts) == 0 {
		return nil, fmt.Errorf("no accounts configured in %s", path)
	}
	return accounts, nil
}
