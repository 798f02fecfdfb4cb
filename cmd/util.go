package cmd

import (
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"bithopper/config"
)

const configEnv = "BITHOPPER_CONFIG"

var defaultConfigNames = []string{"config.json", "config.toml"}

// getAppDir returns the binary name and the directory it lives in.
func getAppDir() (string, string) {
	app := strings.TrimLeft(os.Args[0], "./")
	dir, err := filepath.Abs(filepath.Dir(os.Args[0]))
	if err != nil {
		log.Panic(err)
	}
	return filepath.Base(app), dir
}

// getConfigPath 优先级: --config, 环境变量, 当前目录, 程序目录
func getConfigPath(command *cobra.Command) string {
	if configPath, _ := command.Flags().GetString("config"); configPath != "" {
		return configPath
	}
	if configPath := os.Getenv(configEnv); configPath != "" {
		return configPath
	}

	_, dir := getAppDir()
	for _, base := range []string{".", dir} {
		for _, name := range defaultConfigNames {
			candidate := filepath.Join(base, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
	}
	return defaultConfigNames[0]
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath := getConfigPath(cmd)
	log.Debugf("Loading configuration from %s", configPath)
	return config.Load(configPath)
}
