package docker

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v2"
)

const stagedEntitiesFileName = "harness_entities.yaml"

var (
	ErrPersistentEntityInvalid = errors.New("invalid persistent entity definition")
)

// PersistentEntity describes an entity the harness stages into the Home Assistant
// configuration before startup, so it exists from the first boot rather than being
// created (and cleaned up) per test.
type PersistentEntity struct {
	EntityId   string                 `yaml:"entity_id"`
	State      string                 `yaml:"state"`
	Attributes map[string]interface{} `yaml:"attributes,omitempty"`
}

type persistentEntitiesFile struct {
	Entities []PersistentEntity `yaml:"entities"`
}

// LoadPersistentEntities parses and validates a persistent entity definitions file.
func LoadPersistentEntities(path string) ([]PersistentEntity, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read persistent entities file \"%s\": %w", path, err)
	}

	var file persistentEntitiesFile
	if err = yaml.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("could not parse persistent entities file \"%s\": %w", path, err)
	}

	for i, entity := range file.Entities {
		if err = validateEntity(entity); err != nil {
			return nil, fmt.Errorf("entity #%d in \"%s\": %w", i+1, path, err)
		}
	}

	return file.Entities, nil
}

// StagePersistentEntities writes the entity definitions into the Home Assistant
// configuration directory as a template-sensor package, which Home Assistant picks
// up on boot.
func StagePersistentEntities(entities []PersistentEntity, configDir string) error {
	packagesDir := filepath.Join(configDir, "packages")
	if err := os.MkdirAll(packagesDir, 0o755); err != nil {
		return fmt.Errorf("could not create packages directory \"%s\": %w", packagesDir, err)
	}

	sensors := make([]map[string]interface{}, 0, len(entities))
	for _, entity := range entities {
		name := entity.EntityId[strings.Index(entity.EntityId, ".")+1:]
		sensor := map[string]interface{}{
			"name":  name,
			"state": entity.State,
		}
		if len(entity.Attributes) > 0 {
			sensor["attributes"] = entity.Attributes
		}
		sensors = append(sensors, sensor)
	}

	document := map[string]interface{}{
		"template": []map[string]interface{}{
			{"sensor": sensors},
		},
	}

	content, err := yaml.Marshal(document)
	if err != nil {
		return fmt.Errorf("could not serialize staged entities: %w", err)
	}

	stagedPath := filepath.Join(packagesDir, stagedEntitiesFileName)
	if err = os.WriteFile(stagedPath, content, 0o644); err != nil {
		return fmt.Errorf("could not write staged entities file \"%s\": %w", stagedPath, err)
	}

	return nil
}

func validateEntity(entity PersistentEntity) error {
	if entity.EntityId == "" {
		return fmt.Errorf("%w: entity_id is required", ErrPersistentEntityInvalid)
	}

	if !strings.Contains(entity.EntityId, ".") {
		return fmt.Errorf("%w: entity_id \"%s\" must be of the form <domain>.<object_id>", ErrPersistentEntityInvalid, entity.EntityId)
	}

	if entity.State == "" {
		return fmt.Errorf("%w: entity \"%s\" has no state", ErrPersistentEntityInvalid, entity.EntityId)
	}

	return nil
}
