package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultSpecialization     = "general"
	DefaultRelaySubjectPrefix = "teamline"
	defaultFileName           = "teamline.yml"
)

// Config models teamline.yml, the per-project configuration.
type Config struct {
	Project struct {
		ID string `yaml:"id" json:"id"`
	} `yaml:"project" json:"project"`
	Experience      Experience `yaml:"experience" json:"experience"`
	Specializations []string   `yaml:"specializations" json:"specializations,omitempty"`
	RBAC            struct {
		Roles map[string]RBACRole `yaml:"roles" json:"roles"`
	} `yaml:"rbac" json:"rbac"`
	Relay struct {
		SubjectPrefix string `yaml:"subject_prefix" json:"subject_prefix,omitempty"`
	} `yaml:"relay" json:"relay"`
}

// Experience holds project-level experience settings. Award points and the
// level curve are fixed because a user's counters are shared by all projects.
type Experience struct {
	DefaultSpecialization string `yaml:"default_specialization" json:"default_specialization"`
}

type RBACRole struct {
	Description string   `yaml:"description" json:"description,omitempty"`
	Permissions []string `yaml:"permissions" json:"permissions"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Project.ID == "" {
		return fmt.Errorf("config.project.id is required")
	}
	if strings.TrimSpace(c.Experience.DefaultSpecialization) == "" {
		return fmt.Errorf("config.experience.default_specialization is required")
	}
	seen := map[string]bool{}
	for _, s := range c.Specializations {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("config.specializations contains empty entry")
		}
		if seen[s] {
			return fmt.Errorf("config.specializations lists %s twice", s)
		}
		seen[s] = true
	}
	if len(c.RBAC.Roles) == 0 {
		return fmt.Errorf("config.rbac.roles is required")
	}
	if _, ok := c.RBAC.Roles["manager"]; !ok {
		return fmt.Errorf("config.rbac.roles must include manager")
	}
	for roleID, role := range c.RBAC.Roles {
		if roleID == "" {
			return fmt.Errorf("config.rbac.roles contains empty role id")
		}
		for _, perm := range role.Permissions {
			if perm == "" {
				return fmt.Errorf("role %s has empty permission id", roleID)
			}
		}
	}
	return nil
}

// AllowsSpecialization reports whether a task may carry the given tag. An
// empty allow-list accepts any tag; an empty tag is always accepted.
func (c *Config) AllowsSpecialization(s string) bool {
	if s == "" || len(c.Specializations) == 0 {
		return true
	}
	for _, allowed := range c.Specializations {
		if allowed == s {
			return true
		}
	}
	return false
}

// RolePermissions returns the permissions granted to a role.
func (c *Config) RolePermissions(role string) []string {
	if c == nil {
		return nil
	}
	return c.RBAC.Roles[role].Permissions
}

// SubjectPrefix returns the NATS subject prefix for relayed events.
func (c *Config) SubjectPrefix() string {
	if c == nil || c.Relay.SubjectPrefix == "" {
		return DefaultRelaySubjectPrefix
	}
	return c.Relay.SubjectPrefix
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, defaultFileName)
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with tl project config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// GenerateDefault returns default config YAML.
func GenerateDefault(projectID string) string {
	return fmt.Sprintf(defaultTemplate, projectID)
}

// Default returns the default Config struct for a project.
func Default(projectID string) *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(GenerateDefault(projectID)), &cfg); err != nil {
		panic(fmt.Sprintf("default config template: %v", err))
	}
	cfg.Project.ID = projectID
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Missing
// experience settings fall back to the defaults.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// YAML renders the config back to YAML.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

func (c *Config) applyDefaults() {
	if c.Experience.DefaultSpecialization == "" {
		c.Experience.DefaultSpecialization = DefaultSpecialization
	}
	if len(c.RBAC.Roles) == 0 {
		c.RBAC.Roles = Default(c.Project.ID).RBAC.Roles
	}
}

const defaultTemplate = `project:
  id: %s

experience:
  default_specialization: general

specializations:
  - frontend
  - backend
  - mobile developer
  - game developer

rbac:
  roles:
    manager:
      description: "Runs the project: sprints, members, closure"
      permissions:
        - project.read
        - project.update
        - project.complete
        - member.manage
        - sprint.create
        - sprint.close
        - task.create
        - task.update
        - task.delete
    member:
      description: "Works on tasks"
      permissions:
        - project.read
        - task.create
        - task.update

relay:
  subject_prefix: teamline
`
