// Package config holds the immutable run configuration: action inputs and the
// runner environment, resolved once at the CLI boundary.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	envparse "github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/droid-action/droidprep/internal/env"
)

const (
	// DefaultTriggerPhrase is the mention that addresses the agent.
	DefaultTriggerPhrase = "@droid"
	// DefaultServerURL is the public GitHub web host.
	DefaultServerURL = "https://github.com"
	// DefaultAPIURL is the public GitHub REST endpoint.
	DefaultAPIURL = "https://api.github.com"
)

// Inputs are the user-facing action inputs.
type Inputs struct {
	// TriggerPhrase is the mention that activates the agent.
	TriggerPhrase string `env:"TRIGGER_PHRASE" envDefault:"@droid"`
	// AssigneeTrigger activates the agent when this user is assigned to an issue.
	AssigneeTrigger string `env:"ASSIGNEE_TRIGGER"`
	// LabelTrigger activates the agent when this label is applied to an issue.
	LabelTrigger string `env:"LABEL_TRIGGER" envDefault:"droid"`
	// BaseBranch overrides the repository default branch.
	BaseBranch string `env:"BASE_BRANCH"`
	// BranchPrefix prefixes branches created by the agent.
	BranchPrefix string `env:"BRANCH_PREFIX" envDefault:"droid/"`
	// AllowedBots is a comma-separated list of bot actors allowed to trigger runs.
	AllowedBots string `env:"ALLOWED_BOTS"`

	// AutomaticReview runs a code review on every pull request event.
	AutomaticReview bool `env:"AUTOMATIC_REVIEW"`
	// AutomaticSecurityReview runs a security review on every pull request event.
	AutomaticSecurityReview bool `env:"AUTOMATIC_SECURITY_REVIEW"`
	// SecuritySeverityThreshold is the lowest severity reported.
	SecuritySeverityThreshold string `env:"SECURITY_SEVERITY_THRESHOLD" envDefault:"medium"`
	// SecurityBlockOnCritical requests changes when a critical finding exists.
	SecurityBlockOnCritical bool `env:"SECURITY_BLOCK_ON_CRITICAL" envDefault:"true"`
	// SecurityBlockOnHigh requests changes when a high finding exists.
	SecurityBlockOnHigh bool `env:"SECURITY_BLOCK_ON_HIGH" envDefault:"false"`
	// SecurityNotifyTeam is mentioned on security findings.
	SecurityNotifyTeam string `env:"SECURITY_NOTIFY_TEAM"`

	ReviewModel     string `env:"REVIEW_MODEL"`
	SecurityModel   string `env:"SECURITY_MODEL"`
	ReasoningEffort string `env:"REASONING_EFFORT"`
	// ReviewUseValidator enables the second validation pass over review candidates.
	ReviewUseValidator bool `env:"REVIEW_USE_VALIDATOR"`
	// ReviewCandidatesPath overrides where the candidates pass writes its JSON.
	ReviewCandidatesPath string `env:"REVIEW_CANDIDATES_PATH"`
	// CodeReviewResults and SecurityResults are the files a combine run merges.
	CodeReviewResults string `env:"CODE_REVIEW_RESULTS"`
	SecurityResults   string `env:"SECURITY_RESULTS"`
	// DroidArgs are extra arguments passed through to the agent.
	DroidArgs string `env:"DROID_ARGS"`

	GitHubToken   string `env:"GITHUB_TOKEN"`
	OverrideToken string `env:"OVERRIDE_GITHUB_TOKEN"`
	// WorkflowToken is the default workflow token used by the CI MCP server.
	WorkflowToken string `env:"DEFAULT_WORKFLOW_TOKEN"`
	// DroidCommentID is a tracking comment created by an earlier step.
	DroidCommentID int64 `env:"DROID_COMMENT_ID"`
	// MCPTools is the launch manifest produced by the prepare step.
	MCPTools string `env:"MCP_TOOLS"`
}

// Token returns the credential used for host API calls.
func (in Inputs) Token() string {
	if t := strings.TrimSpace(in.OverrideToken); t != "" {
		return t
	}
	return strings.TrimSpace(in.GitHubToken)
}

// AllowedBotList splits AllowedBots on commas.
func (in Inputs) AllowedBotList() []string {
	var out []string
	for _, b := range strings.Split(in.AllowedBots, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Runner describes the Actions runner environment.
type Runner struct {
	EventName  string `env:"GITHUB_EVENT_NAME"`
	EventPath  string `env:"GITHUB_EVENT_PATH"`
	Repository string `env:"GITHUB_REPOSITORY"`
	Actor      string `env:"GITHUB_ACTOR"`
	RunID      string `env:"GITHUB_RUN_ID"`
	ServerURL  string `env:"GITHUB_SERVER_URL" envDefault:"https://github.com"`
	APIURL     string `env:"GITHUB_API_URL" envDefault:"https://api.github.com"`
	// Temp is the per-job scratch directory; artifacts live under it.
	Temp       string `env:"RUNNER_TEMP"`
	OutputPath string `env:"GITHUB_OUTPUT"`
	EnvPath    string `env:"GITHUB_ENV"`
	// ActionPath is where the action's own sources are checked out.
	ActionPath string `env:"GITHUB_ACTION_PATH"`
	Workspace  string `env:"GITHUB_WORKSPACE"`
}

// OwnerRepo splits Repository into owner and name.
func (r Runner) OwnerRepo() (string, string, error) {
	return SplitRepository(r.Repository)
}

// PromptDir is the directory holding every prompt artifact of the run.
func (r Runner) PromptDir() string {
	base := r.Temp
	if strings.TrimSpace(base) == "" {
		base = os.TempDir()
	}
	return filepath.Join(base, "droid-prompts")
}

// RunURL links to the current workflow run.
func (r Runner) RunURL() string {
	return fmt.Sprintf("%s/%s/actions/runs/%s", strings.TrimRight(r.ServerURL, "/"), r.Repository, r.RunID)
}

// Config is the full resolved configuration of one invocation.
type Config struct {
	Inputs Inputs
	Runner Runner
	// LogLevel comes from DROIDPREP_LOG_LEVEL when the flag is not set.
	LogLevel string `env:"DROIDPREP_LOG_LEVEL"`
}

// LoadOptions lists the configuration sources layered under the environment.
type LoadOptions struct {
	// InputsFile is a YAML or TOML file of action inputs, keyed by input name.
	InputsFile string
	// EnvFiles are dotenv files merged in order.
	EnvFiles []string
	// BaseDir resolves relative EnvFiles.
	BaseDir string
	// Environ replaces the process environment when non-nil.
	Environ env.Vars
}

// Load resolves the configuration. Sources, lowest precedence first: struct
// defaults, the inputs file, env files, INPUT_* variables, the environment. Blank values are
// treated as unset so that defaults survive empty action inputs.
func Load(opts LoadOptions) (*Config, error) {
	var layers []env.Vars

	if strings.TrimSpace(opts.InputsFile) != "" {
		vars, err := LoadInputsFile(opts.InputsFile)
		if err != nil {
			return nil, err
		}
		layers = append(layers, vars)
	}

	if len(opts.EnvFiles) > 0 {
		vars, err := env.LoadEnvFiles(opts.BaseDir, opts.EnvFiles)
		if err != nil {
			return nil, err
		}
		layers = append(layers, vars)
	}

	environ := opts.Environ
	if environ == nil {
		environ = env.FromOS()
	}
	layers = append(layers, environ.ActionInputs().NonBlank(), environ)

	merged := env.Merge(layers...).NonBlank()

	cfg := &Config{}
	if err := envparse.ParseWithOptions(cfg, envparse.Options{Environment: merged}); err != nil {
		return nil, fmt.Errorf("parse configuration: %w", err)
	}
	return cfg, nil
}

// LoadInputsFile reads a YAML (.yaml, .yml) or TOML (.toml) map of inputs.
// Keys may use input names (trigger_phrase) or variable names (TRIGGER_PHRASE).
func LoadInputsFile(path string) (env.Vars, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read inputs file %q: %w", path, err)
	}

	doc := map[string]any{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.NewDecoder(bytes.NewReader(raw)).Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode toml inputs file %q: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decode yaml inputs file %q: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("inputs file %q: unsupported extension, expected .yaml, .yml or .toml", path)
	}

	out := make(env.Vars, len(doc))
	for key, value := range doc {
		name := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(key), "-", "_"))
		if name == "" {
			continue
		}
		s, err := scalarString(value)
		if err != nil {
			return nil, fmt.Errorf("inputs file %q: key %q: %w", path, key, err)
		}
		out[name] = s
	}
	return out, nil
}

func scalarString(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case uint64:
		return strconv.FormatUint(t, 10), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("value of type %T is not a scalar", v)
	}
}

// SplitRepository validates an "owner/repo" slug.
func SplitRepository(repo string) (string, string, error) {
	repo = strings.TrimSpace(repo)
	if repo == "" {
		return "", "", fmt.Errorf("repository is empty")
	}
	parts := strings.Split(repo, "/")
	if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
		return "", "", fmt.Errorf("invalid repository slug %q, expected owner/repo", repo)
	}
	return parts[0], parts[1], nil
}
