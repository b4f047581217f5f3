// Command secvalidate exercises the validator library from the command
// line: load trust anchors and a rule-driven policy from an INFO-style
// configuration, then validate a single Data packet against them.
//
// Grounded on cmd/tester/main.go's shape (flags for a policy file and a
// subject to check it against, JSON result on stdout, non-zero exit on
// failure) but restructured onto github.com/spf13/cobra the way
// cmd/localk8s/root.go wires its subcommands, rather than the flat
// flag.Parse() cmd/tester uses.
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ndn-io/sec2/internal/obslog"
	"github.com/ndn-io/sec2/pkg/ndnsec/anchor"
	"github.com/ndn-io/sec2/pkg/ndnsec/cert"
	"github.com/ndn-io/sec2/pkg/ndnsec/fetcher"
	"github.com/ndn-io/sec2/pkg/ndnsec/name"
	"github.com/ndn-io/sec2/pkg/ndnsec/packet"
	"github.com/ndn-io/sec2/pkg/ndnsec/policy"
	"github.com/ndn-io/sec2/pkg/ndnsec/sec"
	"github.com/ndn-io/sec2/pkg/ndnsec/storage"
	"github.com/ndn-io/sec2/pkg/ndnsec/validator"
	"github.com/ndn-io/sec2/pkg/ndnsec/wireconfig"
)

type result struct {
	Accepted bool   `json:"accepted"`
	Error    string `json:"error,omitempty"`
}

// envConfig holds operational defaults that operators typically set once
// per deployment rather than pass on every invocation — e.g. a
// systemd unit's Environment= lines. Flags always take precedence;
// these values are the flag defaults, used when a flag is not given.
type envConfig struct {
	LogLevel string `envconfig:"log_level" default:"warn"`
	MaxDepth int    `envconfig:"max_depth" default:"0"`
}

func loadEnvConfig() envConfig {
	var cfg envConfig
	// Malformed env values fall back to the struct tag defaults already
	// populated above; there is no stderr attached yet to report them to.
	_ = envconfig.Process("secvalidate", &cfg)
	return cfg
}

func main() {
	cfg := loadEnvConfig()

	root := &cobra.Command{
		Use:   "secvalidate",
		Short: "Validate an NDN Data packet against a rule-driven trust configuration",
	}
	root.AddCommand(newValidateCommand(cfg))
	root.AddCommand(newValidateBatchCommand(cfg))
	root.AddCommand(newConfigCommand())
	root.AddCommand(newAnchorCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newValidateCommand(cfg envConfig) *cobra.Command {
	var configPath, dataPath string
	var anchorPaths []string
	var verbose bool
	maxDepth := cfg.MaxDepth

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a JSON-encoded Data packet",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := obslog.NewDevelopment()
			if !verbose {
				logger = obslog.NewProduction(cfg.LogLevel)
			}
			ctx := obslog.WithLogger(context.Background(), logger)
			return runValidate(ctx, configPath, dataPath, anchorPaths, maxDepth)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to the INFO-style validator configuration")
	cmd.Flags().StringVar(&dataPath, "data", "", "path to the JSON-encoded Data packet to validate")
	cmd.Flags().StringArrayVar(&anchorPaths, "anchor", nil, "path to a JSON-encoded trust-anchor certificate (repeatable)")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "enable development-mode logging")
	cmd.Flags().IntVar(&maxDepth, "max-depth", maxDepth, "maximum certificate-chain depth to pursue before failing closed (0 uses the validator's own default)")
	_ = cmd.MarkFlagRequired("config")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

// newValidator loads the INFO-style config at configPath plus any
// --anchor files into a fresh Storage via buildFromConfig, and returns a
// single Validator over that policy, fetcher, and storage. The batch
// command calls buildFromConfig directly and shares its result across
// several validator.New instances (Storage's caches and the anchor
// container are mutex-protected — see newValidateBatchCommand).
func newValidator(ctx context.Context, configPath string, anchorPaths []string, maxDepth int) (*validator.Validator, error) {
	pol, fetch, st, err := buildFromConfig(ctx, configPath, anchorPaths)
	if err != nil {
		return nil, err
	}
	var opts []validator.Option
	if maxDepth > 0 {
		opts = append(opts, validator.WithMaxDepth(maxDepth))
	}
	return validator.New(pol, fetch, st, unsupportedSignedInterestDecoder, opts...), nil
}

func buildFromConfig(ctx context.Context, configPath string, anchorPaths []string) (policy.Policy, fetcher.Fetcher, *storage.Storage, error) {
	logger := obslog.FromContext(ctx)

	doc, err := loadConfigDocument(configPath)
	if err != nil {
		return nil, nil, nil, err
	}

	st := storage.New(nil)
	st.SetLogger(logger)

	var bypassPrefixes []name.Name
	for i, a := range doc.Anchors {
		groupID := fmt.Sprintf("config-anchor-%d", i)
		switch {
		case a.Bypass:
			bypassPrefixes = append(bypassPrefixes, name.Parse(a.Dir))
		case a.FileName != "":
			cv, err := loadAnchorFile(a.FileName)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("loading trust anchor %s: %w", a.FileName, err)
			}
			if err := st.LoadAnchor(groupID, cv); err != nil {
				return nil, nil, nil, fmt.Errorf("registering trust anchor %s: %w", a.FileName, err)
			}
		case a.Base64String != "":
			cv, err := decodeCertificateBase64(a.Base64String)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("decoding base64 trust anchor: %w", err)
			}
			if err := st.LoadAnchor(groupID, cv); err != nil {
				return nil, nil, nil, fmt.Errorf("registering base64 trust anchor: %w", err)
			}
		case a.Dir != "":
			loader := anchor.PEMLoader{Decode: decodeCertificate}
			if _, err := st.LoadDynamicAnchor(groupID, a.Dir, a.Refresh, true, loader); err != nil {
				return nil, nil, nil, fmt.Errorf("registering dynamic trust-anchor directory %s: %w", a.Dir, err)
			}
			logger.Infow("registered dynamic trust-anchor directory", "dir", a.Dir, "refresh", a.Refresh)
		}
	}
	for i, path := range anchorPaths {
		cv, err := loadAnchorFile(path)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("loading --anchor %s: %w", path, err)
		}
		if err := st.LoadAnchor(fmt.Sprintf("cli-anchor-%d", i), cv); err != nil {
			return nil, nil, nil, fmt.Errorf("registering --anchor %s: %w", path, err)
		}
	}

	pol := policy.NewConfig(doc.Rules, bypassPrefixes, unsupportedSignedInterestDecoder)
	fetch := fetcher.NewFromStorage(st)
	return pol, fetch, st, nil
}

func loadConfigDocument(configPath string) (*wireconfig.Document, error) {
	configRaw, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	doc, err := wireconfig.Parse(configRaw)
	if err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return doc, nil
}

func runValidate(ctx context.Context, configPath, dataPath string, anchorPaths []string, maxDepth int) error {
	v, err := newValidator(ctx, configPath, anchorPaths, maxDepth)
	if err != nil {
		return err
	}

	res, err := validateOne(ctx, v, dataPath)
	if err != nil {
		return err
	}

	out, err := json.Marshal(res)
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	if !res.Accepted {
		os.Exit(1)
	}
	return nil
}

// runValidateBatch validates each of dataPaths against a shared
// Storage/Policy/Fetcher, one independent Validator per path, running
// concurrently via errgroup: spec.md §5 explicitly allows "multiple
// independent validations [to] be in flight" as long as each drives its
// own single-threaded state machine, which per-goroutine Validator
// instances (distinct Trampoline executors) over shared, mutex-protected
// Storage satisfies.
func runValidateBatch(ctx context.Context, configPath string, dataPaths, anchorPaths []string, maxDepth int) error {
	pol, fetch, st, err := buildFromConfig(ctx, configPath, anchorPaths)
	if err != nil {
		return err
	}

	var opts []validator.Option
	if maxDepth > 0 {
		opts = append(opts, validator.WithMaxDepth(maxDepth))
	}

	results := make([]result, len(dataPaths))

	g, gctx := errgroup.WithContext(ctx)
	for i, dataPath := range dataPaths {
		i, dataPath := i, dataPath
		g.Go(func() error {
			v := validator.New(pol, fetch, st, unsupportedSignedInterestDecoder, opts...)
			res, err := validateOne(gctx, v, dataPath)
			if err != nil {
				return fmt.Errorf("%s: %w", dataPath, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	out, err := json.Marshal(results)
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	for _, res := range results {
		if !res.Accepted {
			os.Exit(1)
		}
	}
	return nil
}

func validateOne(ctx context.Context, v *validator.Validator, dataPath string) (result, error) {
	dataRaw, err := os.ReadFile(dataPath)
	if err != nil {
		return result{}, fmt.Errorf("reading data packet: %w", err)
	}
	d, err := decodeData(dataRaw)
	if err != nil {
		return result{}, fmt.Errorf("decoding data packet: %w", err)
	}

	var res result
	v.ValidateData(ctx, d,
		func(packet.Data) { res = result{Accepted: true} },
		func(_ packet.Data, e *sec.Error) { res = result{Accepted: false, Error: e.Error()} },
	)
	return res, nil
}

func loadAnchorFile(path string) (*cert.V2, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cv, err := decodeCertificate(raw)
	if err != nil {
		return nil, err
	}
	return cv, nil
}

func decodeCertificateBase64(encoded string) (*cert.V2, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decoding base64-string trust anchor: %w", err)
	}
	return decodeCertificate(raw)
}

func newValidateBatchCommand(cfg envConfig) *cobra.Command {
	var configPath string
	var anchorPaths []string
	var verbose bool
	maxDepth := cfg.MaxDepth

	cmd := &cobra.Command{
		Use:   "validate-batch <data-file>...",
		Short: "Validate several JSON-encoded Data packets concurrently against the same trust configuration",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := obslog.NewDevelopment()
			if !verbose {
				logger = obslog.NewProduction(cfg.LogLevel)
			}
			ctx := obslog.WithLogger(context.Background(), logger)
			return runValidateBatch(ctx, configPath, args, anchorPaths, maxDepth)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to the INFO-style validator configuration")
	cmd.Flags().StringArrayVar(&anchorPaths, "anchor", nil, "path to a JSON-encoded trust-anchor certificate (repeatable)")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "enable development-mode logging")
	cmd.Flags().IntVar(&maxDepth, "max-depth", maxDepth, "maximum certificate-chain depth to pursue before failing closed (0 uses the validator's own default)")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func newConfigCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "config",
		Short: "Inspect an INFO-style validator configuration",
	}
	var configPath string
	check := &cobra.Command{
		Use:   "check",
		Short: "Parse a configuration and report its rule and trust-anchor counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := loadConfigDocument(configPath)
			if err != nil {
				return err
			}
			fmt.Printf("%d rule(s), %d trust-anchor declaration(s)\n", len(doc.Rules), len(doc.Anchors))
			for _, r := range doc.Rules {
				fmt.Printf("  rule %s: for=%v\n", r.ID, map[bool]string{true: "data", false: "interest"}[r.ForData])
			}
			return nil
		},
	}
	check.Flags().StringVar(&configPath, "config", "", "path to the INFO-style validator configuration")
	_ = check.MarkFlagRequired("config")
	root.AddCommand(check)
	return root
}

func newAnchorCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "anchor",
		Short: "Inspect trust anchors",
	}
	var configPath string
	list := &cobra.Command{
		Use:   "list",
		Short: "List the trust-anchor declarations a configuration would load",
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := loadConfigDocument(configPath)
			if err != nil {
				return err
			}
			for i, a := range doc.Anchors {
				switch {
				case a.Bypass:
					fmt.Printf("%d: bypass prefix %s\n", i, a.Dir)
				case a.FileName != "":
					fmt.Printf("%d: file %s\n", i, a.FileName)
				case a.Base64String != "":
					fmt.Printf("%d: inline base64 certificate\n", i)
				case a.Dir != "":
					fmt.Printf("%d: directory %s (refresh %s)\n", i, a.Dir, a.Refresh)
				}
			}
			return nil
		},
	}
	list.Flags().StringVar(&configPath, "config", "", "path to the INFO-style validator configuration")
	_ = list.MarkFlagRequired("config")
	root.AddCommand(list)
	return root
}

// unsupportedSignedInterestDecoder is wired in for the Data-only CLI
// path; the library itself fully supports signed Interests, but this
// command doesn't yet have a JSON encoding for one (see DESIGN.md).
func unsupportedSignedInterestDecoder(n name.Name, _, _ name.Component) (packet.SignatureInfo, []byte, error) {
	return packet.SignatureInfo{}, nil, fmt.Errorf("secvalidate does not yet support signed Interests (name %s)", n)
}
