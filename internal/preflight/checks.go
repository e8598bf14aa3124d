package preflight

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"

	"golang.org/x/sys/unix"

	"songify/internal/config"
	"songify/internal/deps"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckNativeHost verifies the song service executable resolves.
func CheckNativeHost(command string) Result {
	const name = "Song host"
	status := deps.Check(deps.Requirement{
		Name:        name,
		Command:     command,
		Description: "Writes and renders songs",
	})
	if !status.Available {
		return Result{Name: name, Detail: status.Detail}
	}
	return Result{Name: name, Passed: true, Detail: status.Path}
}

// CheckCredentials reports which API keys are configured. Keys stored through
// "songify settings set" are not visible here.
func CheckCredentials(creds config.Credentials) Result {
	const name = "Credentials"
	var missing []string
	if strings.TrimSpace(creds.OpenAIAPIKey) == "" {
		missing = append(missing, "openai_api_key")
	}
	if strings.TrimSpace(creds.PiAPIKey) == "" {
		missing = append(missing, "piapi_key")
	}
	if len(missing) > 0 {
		return Result{Name: name, Detail: "missing " + strings.Join(missing, ", ")}
	}
	return Result{Name: name, Passed: true, Detail: "configured"}
}

// CheckBindAvailable verifies the bridge address can be bound.
func CheckBindAvailable(ctx context.Context, bind string) Result {
	const name = "Bridge address"
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", bind)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", bind, err)}
	}
	_ = listener.Close()
	return Result{Name: name, Passed: true, Detail: bind}
}
