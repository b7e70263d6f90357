// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package strategy

import (
	"fmt"
	"strings"

	"github.com/ManuGH/peersync/internal/procgroup"
	"github.com/ManuGH/peersync/internal/target"
)

// SecretEnv carries the password to PowerShell so it never appears on a
// command line.
const SecretEnv = "PEERSYNC_SECRET"

// shutdownDelay is the grace the remote shutdown command gives the peer.
const shutdownDelay = "5"

func psQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func psCredential(t target.Descriptor) string {
	return "$ErrorActionPreference='Stop'; " +
		"$u=" + psQuote(t.Username()) + "; " +
		"$p=$env:" + SecretEnv + "; " +
		"if ([string]::IsNullOrEmpty($p)) { $s = New-Object System.Security.SecureString } " +
		"else { $s = ConvertTo-SecureString $p -AsPlainText -Force }; " +
		"$c = New-Object System.Management.Automation.PSCredential($u, $s); "
}

func powershell(script string, t target.Descriptor) Invocation {
	return Invocation{
		Bin:  "powershell.exe",
		Args: []string{"-NoProfile", "-NonInteractive", "-ExecutionPolicy", "Bypass", "-Command", script},
		Env:  []string{SecretEnv + "=" + t.Secret()},
	}
}

// NewWinRM shuts the peer down through PowerShell remoting.
func NewWinRM(r Runner) *Command {
	return &Command{
		name:   NameWinRM,
		runner: r,
		steps: []step{func(t target.Descriptor) Invocation {
			script := psCredential(t) +
				"Invoke-Command -ComputerName " + psQuote(t.Address()) +
				" -Credential $c -ScriptBlock { Stop-Computer -Force }"
			return powershell(script, t)
		}},
	}
}

// NewCIM calls Win32_OperatingSystem.Win32Shutdown (forced power off) over
// a DCOM CIM session, independent of the WinRM listener.
func NewCIM(r Runner) *Command {
	return &Command{
		name:   NameCIM,
		runner: r,
		steps: []step{func(t target.Descriptor) Invocation {
			script := psCredential(t) +
				"$o = New-CimSessionOption -Protocol Dcom; " +
				"$cs = New-CimSession -ComputerName " + psQuote(t.Address()) + " -Credential $c -SessionOption $o; " +
				"try { $r = Invoke-CimMethod -CimSession $cs -ClassName Win32_OperatingSystem -MethodName Win32Shutdown -Arguments @{Flags=5}; " +
				"if ($r.ReturnValue -ne 0) { throw \"Win32Shutdown returned $($r.ReturnValue)\" } } " +
				"finally { Remove-CimSession $cs }"
			return powershell(script, t)
		}},
	}
}

func ipcShare(t target.Descriptor) string { return `\\` + t.Address() + `\IPC$` }

// NewNet authenticates an IPC$ session with net use, then issues
// shutdown /m against the peer. The session is removed afterwards.
func NewNet(r Runner) *Command {
	return &Command{
		name:   NameNet,
		runner: r,
		steps: []step{
			func(t target.Descriptor) Invocation {
				return Invocation{Bin: "net", Args: []string{"use", ipcShare(t), "/user:" + t.Username(), t.Secret()}}
			},
			func(t target.Descriptor) Invocation {
				return Invocation{Bin: "shutdown", Args: []string{"/s", "/f", "/m", `\\` + t.Address(), "/t", shutdownDelay}}
			},
		},
		cleanup: []step{func(t target.Descriptor) Invocation {
			return Invocation{Bin: "net", Args: []string{"use", ipcShare(t), "/delete", "/y"}}
		}},
	}
}

// NewPsExec runs shutdown on the peer through Sysinternals PsExec.
func NewPsExec(r Runner, path string) *Command {
	if path == "" {
		path = "psexec"
	}
	return &Command{
		name:   NamePsExec,
		runner: r,
		steps: []step{func(t target.Descriptor) Invocation {
			return Invocation{
				Bin: path,
				Args: []string{
					`\\` + t.Address(), "-accepteula", "-nobanner",
					"-u", t.Username(), "-p", t.Secret(),
					"-d", "shutdown", "/s", "/f", "/t", shutdownDelay,
				},
				Accept: psexecAccepted,
			}
		}},
	}
}

// psexecAccepted handles -d: PsExec exits with the remote process id, so a
// non-zero code is success when it reports the process was started.
func psexecAccepted(res procgroup.Result, err error) bool {
	out := strings.ToLower(res.Stdout + res.Stderr)
	if strings.Contains(out, "started on") && strings.Contains(out, "process id") {
		return true
	}
	return err == nil && res.ExitCode == 0
}

// describe is used in logs and tests; it never includes the secret.
func describe(inv Invocation, secret string) string {
	args := make([]string, len(inv.Args))
	for i, a := range inv.Args {
		if secret != "" && strings.Contains(a, secret) {
			a = strings.ReplaceAll(a, secret, "***")
		}
		args[i] = a
	}
	return fmt.Sprintf("%s %s", inv.Bin, strings.Join(args, " "))
}
