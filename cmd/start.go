package cmd

import (
	"fmt"
	"io/ioutil"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"bithopper/config"
	"bithopper/core"
)

const lockFile = "bh.lock"

var daemon bool
var startCmd = &cobra.Command{
	Use:          "start",
	Short:        "Start the server",
	RunE:         startCmdF,
	SilenceUsage: true,
}

func init() {
	RootCmd.AddCommand(startCmd)
	startCmd.Flags().BoolVarP(&daemon, "daemon", "d", false, "run with daemon?")
	RootCmd.RunE = startCmdF
}

func startCmdF(cmd *cobra.Command, args []string) error {
	// 后台启动
	if daemon {
		runDaemon(cmd)
	}

	// 加载配置文件
	cfg, err := loadConfig(cmd)
	if err != nil {
		log.Errorf("Error loading configuration: %v", err)
		return err
	}
	if err := initLogger(&cfg.Logger); err != nil {
		return err
	}

	// 启动服务器
	interruptChan := make(chan os.Signal, 1)
	return runServer(cfg, interruptChan)
}

func runDaemon(cmd *cobra.Command) {
	// 获取应用名
	app, dir := getAppDir()

	// 拿到启动命令并自启动
	bin := fmt.Sprintf("%s/%s", dir, app)
	args := []string{"start"}
	if configPath, _ := cmd.Flags().GetString("config"); configPath != "" {
		args = append(args, "--config", configPath)
	}
	command := exec.Command(bin, args...)
	if err := command.Start(); err != nil {
		log.Fatalf("Unable to start daemon: %v", err)
	}

	// 打印日志
	log.Infof("Server start, [PID] %d running...", command.Process.Pid)
	if err := writeLockFile(dir, command.Process.Pid); err != nil {
		log.Warnf("Unable to write %s, stop will not find the daemon: %v", lockFile, err)
	}
	daemon = false
	os.Exit(0)
}

// writeLockFile 记录守护进程 PID, 供 stop 使用
func writeLockFile(dir string, pid int) error {
	return ioutil.WriteFile(filepath.Join(dir, lockFile), []byte(fmt.Sprintf("%d", pid)), 0666)
}

func runServer(cfg *config.Config, interruptChan chan os.Signal) error {
	server, err := core.NewServer(cfg)
	if err != nil {
		log.Errorf("Fail to create server: %v", err)
		return err
	}
	defer server.Close()

	if err := server.Start(); err != nil {
		log.Errorf("Fail to start server: %v", err)
		return err
	}

	// wait for kill signal before attempting to gracefully shutdown
	// the running service
	signal.Notify(interruptChan, syscall.SIGINT, syscall.SIGTERM)
	<-interruptChan
	log.Info("Shutting down")

	return nil
}

func initLogger(cfg *config.Logger) error {
	switch cfg.Format {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	// Output to stdout instead of the default stderr
	log.SetOutput(os.Stdout)
	if cfg.File != "" {
		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return fmt.Errorf("open log file %q: %w", cfg.File, err)
		}
		log.SetOutput(file)
	}

	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	log.SetLevel(level)
	return nil
}
