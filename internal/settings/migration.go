package settings

import (
	"fmt"
	"sort"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/dshills/neonplay/internal/version"
)

// CurrentVersion is the settings document version written by this build.
const CurrentVersion = "1.1.0"

// Migration upgrades a settings document from one version to the next.
type Migration struct {
	From        version.Version
	To          version.Version
	Description string

	// Migrate returns the rewritten document.
	Migrate func(doc string) (string, error)
}

// MigrationResult records one applied migration.
type MigrationResult struct {
	From        version.Version
	To          version.Version
	Description string
	Success     bool
	Err         error
}

// Migrator applies registered migrations in version order.
type Migrator struct {
	migrations []Migration
	current    version.Version
}

// NewMigrator creates a migrator targeting current.
func NewMigrator(current version.Version) *Migrator {
	return &Migrator{current: current}
}

// CurrentVersion returns the target version.
func (m *Migrator) CurrentVersion() version.Version {
	return m.current
}

// Register adds a migration. Migrations must move forward.
func (m *Migrator) Register(mig Migration) error {
	if mig.To.Compare(mig.From) <= 0 {
		return fmt.Errorf("migration %s -> %s does not move forward", mig.From, mig.To)
	}
	if mig.Migrate == nil {
		return fmt.Errorf("migration %s -> %s has no function", mig.From, mig.To)
	}
	m.migrations = append(m.migrations, mig)
	sort.SliceStable(m.migrations, func(i, j int) bool {
		return m.migrations[i].From.Compare(m.migrations[j].From) < 0
	})
	return nil
}

// DocumentVersion returns the version recorded in doc. A missing or
// unparsable version is 0.0.0.
func DocumentVersion(doc string) version.Version {
	v, err := version.Parse(gjson.Get(doc, KeyVersion).String())
	if err != nil {
		return version.Version{}
	}
	return v
}

// NeedsMigration reports whether doc is older than the current version.
func (m *Migrator) NeedsMigration(doc string) bool {
	return DocumentVersion(doc).Compare(m.current) < 0
}

// Migrate applies every migration between the document version and the
// current version, then stamps the current version. Documents newer than
// the current version are returned unchanged.
func (m *Migrator) Migrate(doc string) (string, []MigrationResult, error) {
	from := DocumentVersion(doc)
	if from.Compare(m.current) > 0 {
		return doc, nil, nil
	}

	var results []MigrationResult
	for _, mig := range m.migrations {
		if mig.From.Compare(from) < 0 || mig.To.Compare(m.current) > 0 {
			continue
		}

		out, err := mig.Migrate(doc)
		result := MigrationResult{From: mig.From, To: mig.To, Description: mig.Description}
		if err != nil {
			result.Err = err
			results = append(results, result)
			return doc, results, fmt.Errorf("migrate settings %s -> %s: %w", mig.From, mig.To, err)
		}
		result.Success = true
		results = append(results, result)
		doc = out
		from = mig.To
	}

	if gjson.Get(doc, KeyVersion).String() == m.current.String() {
		return doc, results, nil
	}
	doc, err := sjson.Set(doc, KeyVersion, m.current.String())
	if err != nil {
		return doc, results, fmt.Errorf("stamp settings version: %w", err)
	}
	return doc, results, nil
}

// MigrationRename moves the value at oldPath to newPath.
func MigrationRename(from, to version.Version, oldPath, newPath, description string) Migration {
	return Migration{
		From:        from,
		To:          to,
		Description: description,
		Migrate: func(doc string) (string, error) {
			r := gjson.Get(doc, oldPath)
			if !r.Exists() {
				return doc, nil
			}
			doc, err := sjson.SetRaw(doc, newPath, r.Raw)
			if err != nil {
				return "", fmt.Errorf("set %s: %w", newPath, err)
			}
			return sjson.Delete(doc, oldPath)
		},
	}
}

// MigrationTransform rewrites the value at path. Missing paths are left alone.
func MigrationTransform(from, to version.Version, path, description string, transform func(gjson.Result) (any, error)) Migration {
	return Migration{
		From:        from,
		To:          to,
		Description: description,
		Migrate: func(doc string) (string, error) {
			r := gjson.Get(doc, path)
			if !r.Exists() {
				return doc, nil
			}
			v, err := transform(r)
			if err != nil {
				return "", fmt.Errorf("transform %s: %w", path, err)
			}
			return sjson.Set(doc, path, v)
		},
	}
}

// MigrationDelete removes path.
func MigrationDelete(from, to version.Version, path, description string) Migration {
	return Migration{
		From:        from,
		To:          to,
		Description: description,
		Migrate: func(doc string) (string, error) {
			return sjson.Delete(doc, path)
		},
	}
}

// MigrationChain runs several migrations as one step.
func MigrationChain(from, to version.Version, description string, steps ...Migration) Migration {
	return Migration{
		From:        from,
		To:          to,
		Description: description,
		Migrate: func(doc string) (string, error) {
			var err error
			for _, step := range steps {
				if doc, err = step.Migrate(doc); err != nil {
					return "", err
				}
			}
			return doc, nil
		},
	}
}

// DefaultMigrator returns a migrator with the built-in migrations.
func DefaultMigrator() *Migrator {
	v0 := version.Version{}
	v1 := version.Version{Major: 1}
	v11 := version.Version{Major: 1, Minor: 1}

	m := NewMigrator(v11)
	m.mustRegister(Migration{
		From:        v0,
		To:          v1,
		Description: "move enabledPlugins list to plugins.<id>.enabled",
		Migrate:     migrateEnabledPlugins,
	})
	m.mustRegister(MigrationChain(v1, v11, "move volume to audio.volume",
		MigrationRename(v1, v11, "volume", KeyVolume, ""),
		MigrationTransform(v1, v11, KeyVolume, "", clampVolume),
	))
	return m
}

// mustRegister registers a built-in migration and panics if it is malformed.
func (m *Migrator) mustRegister(mig Migration) {
	if err := m.Register(mig); err != nil {
		panic(fmt.Sprintf("settings: built-in migration %s -> %s: %v", mig.From, mig.To, err))
	}
}

func migrateEnabledPlugins(doc string) (string, error) {
	list := gjson.Get(doc, "enabledPlugins")
	if !list.Exists() {
		return doc, nil
	}
	var err error
	for _, id := range list.Array() {
		if id.Type != gjson.String || !ValidKey(id.String()) {
			continue
		}
		if doc, err = sjson.Set(doc, PluginKey(id.String(), "enabled"), true); err != nil {
			return "", err
		}
	}
	return sjson.Delete(doc, "enabledPlugins")
}

func clampVolume(r gjson.Result) (any, error) {
	if r.Type != gjson.Number {
		return 1.0, nil
	}
	v := r.Float()
	switch {
	case v < 0:
		return 0.0, nil
	case v > 1:
		return 1.0, nil
	}
	return v, nil
}
