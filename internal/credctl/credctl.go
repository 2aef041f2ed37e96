// Package credctl is the operator command line. It computes password
// digests for seeding accounts directly in the database and previews
// confirmation codes, using the same hashing settings as the server.
package credctl

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"golang.org/x/term"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/cryptox"
	"github.com/dmitrijs2005/authkeeper/internal/timex"
)

// readPassword and isTerminal are test seams for the terminal.
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

var errUsage = errors.New("usage: credctl <hash|code> [flags]")

// Settings are read from the same variables the server uses, e.g.
// AUTHKEEPER_PASSWORD_HASH_KEY.
type Settings struct {
	PasswordHashKey       string        `env:"PASSWORD_HASH_KEY"`
	PasswordHashAlgorithm string        `env:"PASSWORD_HASH_ALGORITHM"`
	ConfirmationCodeTTL   time.Duration `env:"CONFIRMATION_CODE_TTL"`
}

type App struct {
	settings Settings
	clock    timex.Clock
	in       *os.File
	out      io.Writer
}

// NewApp reads Settings from environ, or from the process environment when
// environ is nil.
func NewApp(environ map[string]string, in *os.File, out io.Writer) (*App, error) {
	s := Settings{
		PasswordHashAlgorithm: cryptox.AlgorithmHMACSHA512,
		ConfirmationCodeTTL:   common.ConfirmationCodeValidity,
	}
	opts := env.Options{Prefix: "AUTHKEEPER_"}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&s, opts); err != nil {
		return nil, fmt.Errorf("env: %w", err)
	}
	return &App{settings: s, clock: timex.Real(), in: in, out: out}, nil
}

// Run executes the subcommand named by args[0].
func (a *App) Run(args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "hash":
		return a.hash(args[1:])
	case "code":
		return a.code(args[1:])
	default:
		return fmt.Errorf("unknown command %q: %w", args[0], errUsage)
	}
}

func (a *App) hash(args []string) error {
	fs := flag.NewFlagSet("hash", flag.ContinueOnError)
	fs.SetOutput(a.out)
	algorithm := fs.String("algorithm", a.settings.PasswordHashAlgorithm, "digest algorithm (hmac-sha512 or blake2b-512)")
	key := fs.String("key", a.settings.PasswordHashKey, "hashing key, defaults to AUTHKEEPER_PASSWORD_HASH_KEY")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *key == "" {
		return errors.New("hashing key is required")
	}

	hasher, err := cryptox.NewPasswordHasher(*algorithm, *key)
	if err != nil {
		return err
	}

	password, err := a.password()
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)
	if len(password) == 0 {
		return errors.New("empty password")
	}

	_, err = fmt.Fprintln(a.out, hasher.Hash(string(password)))
	return err
}

// password prompts without echo on a terminal and otherwise reads one line,
// so digests can also be produced from a pipe.
func (a *App) password() ([]byte, error) {
	fd := int(a.in.Fd())
	if isTerminal(fd) {
		if _, err := fmt.Fprint(a.out, "Enter password: "); err != nil {
			return nil, err
		}
		pw, err := readPassword(fd)
		fmt.Fprintln(a.out)
		return pw, err
	}

	line, err := bufio.NewReader(a.in).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
		return nil, fmt.Errorf("reading password: %w", err)
	}
	return []byte(strings.TrimRight(line, "\r\n")), nil
}

func (a *App) code(args []string) error {
	fs := flag.NewFlagSet("code", flag.ContinueOnError)
	fs.SetOutput(a.out)
	ttl := fs.Duration("ttl", a.settings.ConfirmationCodeTTL, "how long the code stays valid")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *ttl <= 0 {
		return errors.New("ttl must be positive")
	}

	c, err := common.GenerateDigitCode(common.ConfirmationCodeLength)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(a.out, "%s valid before %s\n", c, a.clock.Now().Add(*ttl).Format(time.RFC3339))
	return err
}
