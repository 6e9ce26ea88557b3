package startup

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/thatsimonsguy/psu-controller/internal/config"
	"github.com/thatsimonsguy/psu-controller/internal/env"
)

// WriteStartupScript writes a script that holds the main power rail off until the
// controller takes over. It uses the libgpiod command line tools.
func WriteStartupScript() error {
	rail := env.Cfg.Rail
	if rail.Line == nil {
		return fmt.Errorf("rail line not configured")
	}

	off := 0
	if !rail.ActiveHigh {
		off = 1
	}

	lines := []string{
		"#!/bin/bash",
		"",
		"# Hold the PSU main power rail off at boot",
		fmt.Sprintf("gpioset %s %d=%d", rail.Chip, *rail.Line, off),
		"",
	}
	contents := strings.Join(lines, "\n")
	return os.WriteFile(env.Cfg.BootScriptPath, []byte(contents), 0755)
}

func InstallStartupService() error {
	unit := fmt.Sprintf(`[Unit]
Description=Hold PSU main power rail off at boot
After=local-fs.target

[Service]
Type=oneshot
Environment=PATH=/usr/local/bin:/usr/bin:/bin
ExecStart=%s
RemainAfterExit=true

[Install]
WantedBy=multi-user.target
`, env.Cfg.BootScriptPath)

	return os.WriteFile(env.Cfg.RailServicePath, []byte(unit), 0644)
}

func RunStartupScript() error {
	cmd := exec.Command("/bin/bash", env.Cfg.BootScriptPath)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func InstallControllerService() error {
	railUnit := filepath.Base(env.Cfg.RailServicePath)
	execCmd := filepath.Join(env.Cfg.ServiceWorkDir, "psu-controller") + " " + serviceArgs(env.Cfg)

	unit := fmt.Sprintf(`[Unit]
Description=PSU controller
After=%s
Requires=%s

[Service]
Type=simple
User=%s
WorkingDirectory=%s
ExecStart=%s
Restart=on-failure
RestartSec=5s

[Install]
WantedBy=multi-user.target
`, railUnit, railUnit, env.Cfg.ServiceUser, env.Cfg.ServiceWorkDir, execCmd)

	return os.WriteFile(env.Cfg.MainServicePath, []byte(unit), 0644)
}

// Install writes the boot script and both units.
func Install() error {
	if err := WriteStartupScript(); err != nil {
		return fmt.Errorf("write startup script: %w", err)
	}
	if err := InstallStartupService(); err != nil {
		return fmt.Errorf("install rail service: %w", err)
	}
	if err := InstallControllerService(); err != nil {
		return fmt.Errorf("install controller service: %w", err)
	}
	return nil
}

func serviceArgs(cfg *config.Config) string {
	args := []string{"-config-file", cfg.ConfigFile, "-db", cfg.DBPath}
	if cfg.LogFile != "" {
		args = append(args, "-log-file", cfg.LogFile)
	}
	if cfg.SafeMode {
		args = append(args, "-safe-mode")
	}
	return strings.Join(args, " ")
}
