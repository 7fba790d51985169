package nativehost

import (
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jnakagawa/loggy/internal/platform"
)

const (
	startProbeDelay = 500 * time.Millisecond
	stopWait        = 300 * time.Millisecond
)

func (h *Host) handle(msg Message) Response {
	switch msg.Action {
	case "ping":
		return Response{Success: true}
	case "startProxy":
		return h.startProxy()
	case "stopProxy":
		return h.stopProxy()
	case "getStatus":
		return h.getStatus()
	default:
		return Response{Success: false, Error: "Unknown action: " + msg.Action}
	}
}

// startProxy launches a detached `loggy-proxy proxy` child in its own
// process group and verifies it came up. Ports still held by a previous
// run are freed first, best effort.
func (h *Host) startProxy() Response {
	if platform.PortInUse(h.cfg.ProxyPort) || platform.PortInUse(h.cfg.APIPort) {
		h.logger.Info("Ports busy, stopping previous proxy",
			h.logger.Args("proxy_port", h.cfg.ProxyPort, "api_port", h.cfg.APIPort))
		platform.KillListeners(h.cfg.ProxyPort)
		platform.KillListeners(h.cfg.APIPort)
		time.Sleep(startProbeDelay)
	}

	execPath, err := os.Executable()
	if err != nil {
		return Response{Success: false, Error: "Failed to get executable path: " + err.Error()}
	}

	cmd := exec.Command(execPath, "proxy")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return Response{Success: false, Error: "Failed to start proxy: " + err.Error()}
	}
	pid := cmd.Process.Pid

	// Reap in the background so the child never zombies while this
	// supervisor lives.
	go cmd.Wait()

	if err := h.writePID(pid); err != nil {
		h.logger.Warn("Failed to write pid file", h.logger.Args("error", err))
	}

	time.Sleep(startProbeDelay)
	if !platform.PortInUse(h.cfg.ProxyPort) {
		return Response{Success: false, Error: "Proxy failed to start"}
	}

	go func() {
		time.Sleep(time.Second)
		if err := platform.TrustRoot(h.cfg.CACertPath()); err != nil {
			h.logger.Debug("Trust store install skipped", h.logger.Args("error", err))
		}
		platform.LaunchBrowser(h.cfg.ProxyPort)
	}()

	return Response{
		Success:      true,
		Message:      "Proxy started",
		PID:          pid,
		AutoLaunched: true,
	}
}

// stopProxy terminates the child recorded in the pid file and verifies
// the port was released.
func (h *Host) stopProxy() Response {
	pid := h.readPID()
	if pid == 0 {
		return Response{Success: false, Error: "No proxy PID found. Proxy may not be running."}
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return Response{Success: false, Error: "Failed to find process: " + err.Error()}
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil && !strings.Contains(err.Error(), "process already finished") {
		return Response{Success: false, Error: "Failed to stop proxy: " + err.Error()}
	}

	os.Remove(h.cfg.PIDPath())

	time.Sleep(stopWait)
	if platform.PortInUse(h.cfg.ProxyPort) {
		return Response{Success: false, Error: "Proxy may still be running"}
	}

	return Response{Success: true, Message: "Proxy stopped"}
}

// getStatus reports liveness from the pid file plus a signal-0 probe.
func (h *Host) getStatus() Response {
	pid := h.readPID()
	running := pid != 0 && platform.ProcessRunning(pid)
	return Response{Success: true, Running: boolPtr(running), PID: pid}
}

func (h *Host) writePID(pid int) error {
	path := h.cfg.PIDPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(pid)), 0644)
}

func (h *Host) readPID() int {
	data, err := os.ReadFile(h.cfg.PIDPath())
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}
