// Package config loads sdburn settings from defaults, SDBURN_* environment
// variables and an optional config.yaml.
package config

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// HomeDir returns the real user's home directory, even when sdburn runs
// elevated through sudo or pkexec and $HOME points at root's.
func HomeDir() string {
	if home, err := os.UserHomeDir(); err == nil && home != "" && isValidHomeDir(home) {
		return home
	}

	switch runtime.GOOS {
	case "linux":
		return linuxHomeDir()
	case "darwin":
		return macHomeDir()
	case "windows":
		return windowsHomeDir()
	}

	for _, env := range []string{"HOME", "USERPROFILE"} {
		if home := os.Getenv(env); home != "" {
			return home
		}
	}
	return os.TempDir()
}

// isValidHomeDir checks if a directory looks like a valid home directory
func isValidHomeDir(dir string) bool {
	stat, err := os.Stat(dir)
	if err != nil || !stat.IsDir() {
		return false
	}
	for _, subdir := range []string{"Downloads", "Documents", "Desktop"} {
		if _, err := os.Stat(filepath.Join(dir, subdir)); err == nil {
			return true
		}
	}
	return false
}

func linuxHomeDir() string {
	for _, who := range []string{os.Getenv("SUDO_USER"), os.Getenv("PKEXEC_UID")} {
		if who == "" {
			continue
		}
		out, err := exec.Command("getent", "passwd", who).Output()
		if err != nil {
			continue
		}
		if home, ok := passwdHome(string(out)); ok {
			return home
		}
	}

	if out, err := exec.Command("getent", "passwd").Output(); err == nil {
		if home, ok := firstRegularUserHome(string(out), isValidHomeDir); ok {
			return home
		}
	}
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	return "/home"
}

// passwdHome returns the home field of a single passwd entry.
func passwdHome(entry string) (string, bool) {
	fields := strings.Split(strings.TrimSpace(entry), ":")
	if len(fields) < 6 || fields[5] == "" {
		return "", false
	}
	return fields[5], true
}

// firstRegularUserHome scans a passwd database for the first account with a
// regular uid (>= 1000) whose home passes valid.
func firstRegularUserHome(passwd string, valid func(string) bool) (string, bool) {
	for _, line := range strings.Split(passwd, "\n") {
		fields := strings.Split(line, ":")
		if len(fields) < 7 {
			continue
		}
		uid, err := strconv.Atoi(fields[2])
		if err != nil || uid < 1000 || uid == 65534 {
			continue
		}
		if home := fields[5]; home != "/root" && valid(home) {
			return home, true
		}
	}
	return "", false
}

func macHomeDir() string {
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		out, err := exec.Command("dscl", ".", "read", "/Users/"+sudoUser, "NFSHomeDirectory").Output()
		if err == nil {
			if parts := strings.Fields(string(out)); len(parts) >= 2 {
				return parts[1]
			}
		}
	}

	for _, candidate := range []string{"/Users", "/home"} {
		entries, err := os.ReadDir(candidate)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() || entry.Name() == "Shared" || entry.Name() == "Guest" {
				continue
			}
			if home := filepath.Join(candidate, entry.Name()); isValidHomeDir(home) {
				return home
			}
		}
	}
	return "/Users"
}

func windowsHomeDir() string {
	username := os.Getenv("USERNAME")
	if username == "" {
		if out, err := exec.Command("whoami").Output(); err == nil {
			username = strings.TrimSpace(string(out))
			if parts := strings.Split(username, `\`); len(parts) > 1 {
				username = parts[1]
			}
		}
	}

	root := os.Getenv("SystemDrive") + `\`
	if username != "" {
		for _, path := range []string{
			filepath.Join(root, "Users", username),
			filepath.Join(root, "Documents and Settings", username),
		} {
			if isValidHomeDir(path) {
				return path
			}
		}
	}
	return filepath.Join(root, "Users")
}
