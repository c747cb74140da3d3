package cmd

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/ambre-sync/reconcile-core/internal/config"
	"github.com/ambre-sync/reconcile-core/internal/model"
)

// loadJSONParamFile reads a flat string-keyed JSON object from path as a
// config.MapParamTable, tolerating an absent file (empty table), mirroring
// the teacher's atomic-JSON-config Load/Save idiom.
func loadJSONParamFile(path string) (config.MapParamTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config.MapParamTable{}, nil
		}
		return nil, err
	}
	var m config.MapParamTable
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = config.MapParamTable{}
	}
	return m, nil
}

// fileReferentialLoader is the CLI's default svcctx.ReferentialLoader: the
// country list comes from the Countries key of the JSON parameter table,
// and it loads no truth rules (the CLI reads those through rules.Cache from
// the opened country's control store). It is intentionally minimal — an embedding application supplies a real
// referential store by implementing svcctx.ReferentialLoader itself.
type fileReferentialLoader struct {
	params config.MapParamTable
}

func newFileReferentialLoader(params config.MapParamTable) *fileReferentialLoader {
	return &fileReferentialLoader{params: params}
}

const keyCountries = "Countries"

// LoadCountries reads a comma-separated Countries parameter.
func (l *fileReferentialLoader) LoadCountries(ctx context.Context) ([]string, error) {
	raw, ok := l.params.Get(keyCountries)
	if !ok {
		return nil, nil
	}
	var out []string
	for _, c := range strings.Split(raw, ",") {
		c = strings.TrimSpace(c)
		if c != "" {
			out = append(out, c)
		}
	}
	return out, nil
}

// LoadTruthRules is unused by the CLI's trimmed rule-evaluate path, which
// reads the rule table directly from the resolved country's control store
// via rules.Cache instead; this satisfies svcctx.ReferentialLoader's
// interface for the rest of the service context's lifetime.
func (l *fileReferentialLoader) LoadTruthRules(ctx context.Context) ([]model.Entity, error) {
	return nil, nil
}
