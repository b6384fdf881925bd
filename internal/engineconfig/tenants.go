package engineconfig

import (
	"errors"
	"fmt"
	"os"

	"github.com/dogmatiq/ferrite"
	"github.com/evsrc/runtime/tenancy"
	"gopkg.in/yaml.v3"
)

var tenantsFile = ferrite.
	String("RUNTIME_TENANTS_FILE", "the path to a YAML file listing the tenants hosted by the runtime").
	Optional()

// tenantsDocument is the structure of the tenants file.
type tenantsDocument struct {
	Tenants []struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name,omitempty"`
	} `yaml:"tenants"`
}

// LoadTenants parses a YAML document that lists tenants.
func LoadTenants(data []byte) (tenancy.Static, error) {
	var doc tenantsDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unable to parse tenants: %w", err)
	}

	var (
		tenants tenancy.Static
		seen    = map[tenancy.ID]struct{}{}
	)

	for i, t := range doc.Tenants {
		id, err := tenancy.Parse(t.ID)
		if err != nil {
			return nil, fmt.Errorf("tenant at index %d has an invalid ID: %w", i, err)
		}

		if _, ok := seen[id]; ok {
			return nil, fmt.Errorf("tenant %s is listed more than once", id)
		}
		seen[id] = struct{}{}

		tenants = append(tenants, id)
	}

	return tenants, nil
}

func (c *Config) finalizeTenants() error {
	if c.Tenants != nil {
		return nil
	}

	if c.UseEnv {
		if path, ok := tenantsFile.Value(); ok {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("unable to read tenants file: %w", err)
			}

			tenants, err := LoadTenants(data)
			if err != nil {
				return err
			}

			c.Tenants = tenants
			return nil
		}
	}

	return errors.New("no tenants are configured, set RUNTIME_TENANTS_FILE or provide the WithTenants() option")
}
