package llm

import (
	"log/slog"
	"os"
	"strings"

	"github.com/awnumar/memguard"
)

// secret holds an API key sealed in a memguard enclave. The plaintext only
// exists in locked memory while a request is being built.
type secret struct {
	enclave *memguard.Enclave
}

func newSecret(value string) *secret {
	if value == "" {
		return nil
	}
	return &secret{enclave: memguard.NewEnclave([]byte(value))}
}

// reveal opens the enclave and passes the key to fn. The buffer is
// destroyed when fn returns.
func (s *secret) reveal(fn func(key string) error) error {
	buf, err := s.enclave.Open()
	if err != nil {
		return err
	}
	defer buf.Destroy()
	return fn(buf.String())
}

// loadSecret reads a key from env, falling back to /run/secrets/<file>.
func loadSecret(env, file string) *secret {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		return newSecret(v)
	}
	path := "/run/secrets/" + file
	if data, err := os.ReadFile(path); err == nil {
		slog.Info("Read API key from secrets file", "path", path)
		return newSecret(strings.TrimSpace(string(data)))
	}
	return nil
}
