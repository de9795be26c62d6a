package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/golang-jwt/jwt/v4"
	"github.com/spf13/cobra"

	"governance-api/domain"
)

const envTestSecret = "TEST_JWT_SECRET"

type tokenOptions struct {
	role       string
	department string
	count      int
	prefix     string
	start      int
	ttl        time.Duration
	audience   string
	output     string
}

func tokenCmd() *cobra.Command {
	opts := tokenOptions{}
	cmd := &cobra.Command{
		Use:   "token [user-id]",
		Short: "Mint HS256 tokens accepted by the API in test mode",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv(envTestSecret)
			if secret == "" {
				return errors.New(envTestSecret + " must be set")
			}
			return runToken(cmd.OutOrStdout(), []byte(secret), opts, args, time.Now())
		},
	}
	cmd.Flags().StringVarP(&opts.role, "role", "r", string(domain.RoleAdmin), "Role claim (MASTER_ADMIN, ADMIN, DEPARTMENT_USER)")
	cmd.Flags().StringVarP(&opts.department, "department", "d", "", "Department claim")
	cmd.Flags().IntVarP(&opts.count, "count", "n", 1, "Number of tokens to generate")
	cmd.Flags().StringVar(&opts.prefix, "prefix", "perf-user", "Prefix for generated user IDs when count > 1")
	cmd.Flags().IntVar(&opts.start, "start", 1, "Starting index for generated user IDs when count > 1")
	cmd.Flags().DurationVar(&opts.ttl, "ttl", time.Hour, "Token lifetime")
	cmd.Flags().StringVar(&opts.audience, "audience", "", "Audience claim")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "File to write generated tokens as a JSON array")
	return cmd
}

func runToken(w io.Writer, secret []byte, opts tokenOptions, args []string, now time.Time) error {
	if opts.count < 1 {
		return errors.New("count must be at least 1")
	}
	if opts.start < 1 {
		return errors.New("start index must be at least 1")
	}
	if len(args) > 0 && opts.count > 1 {
		return errors.New("explicit user ID cannot be provided when generating multiple tokens")
	}
	role, err := domain.ParseRole(opts.role)
	if err != nil {
		return fmt.Errorf("%w: %q", err, opts.role)
	}

	tokens := make([]string, opts.count)
	for i := range tokens {
		var userID string
		switch {
		case len(args) > 0:
			userID = args[0]
		case opts.count == 1:
			userID = opts.prefix
		default:
			userID = fmt.Sprintf("%s-%d", opts.prefix, opts.start+i)
		}
		claims := jwt.MapClaims{
			"sub":  userID,
			"role": string(role),
			"iat":  now.Unix(),
			"exp":  now.Add(opts.ttl).Unix(),
		}
		if opts.department != "" {
			claims["departmentId"] = opts.department
		}
		if opts.audience != "" {
			claims["aud"] = opts.audience
		}
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
		if err != nil {
			return err
		}
		tokens[i] = tok
	}

	if opts.output != "" {
		if err := writeTokens(opts.output, tokens); err != nil {
			return fmt.Errorf("write tokens: %w", err)
		}
	}
	_, err = fmt.Fprint(w, tokens[0])
	return err
}

func writeTokens(path string, tokens []string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := sonic.Marshal(tokens)
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}
