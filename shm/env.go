// File: shm/env.go
// Author: momentics <momentics@gmail.com>
//
// Domain parameters travel from launcher to worker through the
// environment: <prefix>_NAME carries the backing-file path, <prefix>_RANK
// the participant's rank in decimal.

package shm

import (
	"fmt"
	"os"
	"strconv"

	"github.com/kelseyhightower/envconfig"
)

// Env is the bootstrap a worker needs to join a domain.
type Env struct {
	Name string `envconfig:"NAME" required:"true"`
	Rank uint32 `envconfig:"RANK" required:"true"`
}

// StoreEnv publishes e into this process's environment under prefix.
func StoreEnv(prefix string, e Env) error {
	if err := os.Setenv(prefix+"_NAME", e.Name); err != nil {
		return err
	}
	return os.Setenv(prefix+"_RANK", strconv.FormatUint(uint64(e.Rank), 10))
}

// LoadEnv reads the bootstrap published under prefix.
func LoadEnv(prefix string) (Env, error) {
	var e Env
	if err := envconfig.Process(prefix, &e); err != nil {
		return Env{}, fmt.Errorf("shm: environment bootstrap: %w", err)
	}
	return e, nil
}

// environ renders e as environment assignments for a child process.
func (e Env) environ(prefix string) []string {
	return []string{
		fmt.Sprintf("%s_NAME=%s", prefix, e.Name),
		fmt.Sprintf("%s_RANK=%d", prefix, e.Rank),
	}
}
