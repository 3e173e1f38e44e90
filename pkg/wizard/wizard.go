package wizard

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/woffyai/woffyd/pkg/config"
)

// RunServerWizard prompts for the main settings, validates the result and
// writes it to path. An empty answer keeps the current value.
func RunServerWizard(in io.Reader, out io.Writer, path string, cfg *config.ServerConfig) error {
	p := prompter{in: bufio.NewScanner(in), out: out}
	fmt.Fprintln(out, "woffyd configuration wizard")
	cfg.ListenAddr = p.ask("Listen address", cfg.ListenAddr)
	cfg.DataDir = p.ask("Data directory (instructions.json, model.json)", cfg.DataDir)

	provider := p.ask("Upstream provider (openrouter/openai)", cfg.Upstream.Provider)
	if !strings.EqualFold(provider, cfg.Upstream.Provider) {
		// Let Normalize fill the new provider's defaults.
		cfg.Upstream.BaseURL = ""
		cfg.Upstream.APIKeyEnv = ""
		cfg.Upstream.Model = ""
	}
	cfg.Upstream.Provider = provider
	cfg.Normalize()
	cfg.Upstream.Model = p.ask("Model", cfg.Upstream.Model)
	cfg.Upstream.APIKeyEnv = p.ask("API key environment variable", cfg.Upstream.APIKeyEnv)
	cfg.Upstream.APIKey = p.ask("API key (leave empty to use the environment)", cfg.Upstream.APIKey)
	maxTokens := p.ask("max_tokens", strconv.Itoa(cfg.Upstream.MaxTokens))
	if v, err := strconv.Atoi(strings.TrimSpace(maxTokens)); err == nil {
		cfg.Upstream.MaxTokens = v
	}

	origins := p.ask("Allowed CORS origins (comma-separated)", strings.Join(cfg.CORS.AllowedOrigins, ","))
	cfg.CORS.AllowedOrigins = splitCSV(origins)

	cfg.TLS.Enabled = parseYes(p.ask("Enable Let's Encrypt TLS? (y/N)", boolStr(cfg.TLS.Enabled)))
	if cfg.TLS.Enabled {
		cfg.TLS.Domain = p.ask("TLS domain", cfg.TLS.Domain)
		cfg.TLS.Email = p.ask("ACME email", cfg.TLS.Email)
		cfg.TLS.CacheDir = p.ask("ACME cache dir", cfg.TLS.CacheDir)
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return err
	}
	return config.Save(path, cfg)
}

type prompter struct {
	in  *bufio.Scanner
	out io.Writer
}

func (p prompter) ask(label, def string) string {
	if def == "" {
		fmt.Fprintf(p.out, "%s: ", label)
	} else {
		fmt.Fprintf(p.out, "%s [%s]: ", label, def)
	}
	if !p.in.Scan() {
		return def
	}
	txt := strings.TrimSpace(p.in.Text())
	if txt == "" {
		return def
	}
	return txt
}

func parseYes(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "y", "yes", "true":
		return true
	}
	return false
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	seen := map[string]struct{}{}
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func boolStr(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
