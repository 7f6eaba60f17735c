// Package plan loads run plans: the explicit mapping from each dataset and
// distance threshold to its input tables and output files.
package plan

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/catchment-cli/internal/ingest"
)

// Plan is the top-level run plan.
type Plan struct {
	Columns  ingest.Columns `yaml:"columns"`
	Datasets []Dataset      `yaml:"datasets"`
}

// Dataset is one organisational unit (e.g. a city) with its thresholds.
type Dataset struct {
	Name       string      `yaml:"name"`
	Population string      `yaml:"population"`
	Points     string      `yaml:"points"`
	OutputDir  string      `yaml:"output_dir"`
	Matches    []Match     `yaml:"matches"`
	Thresholds []Threshold `yaml:"thresholds"`

	CompositeOutput string `yaml:"composite_output"`
	JoinOutput      string `yaml:"join_output"`
	GeoJSONOutput   string `yaml:"geojson_output"`
}

// Threshold binds one distance threshold to its sources and outputs.
type Threshold struct {
	Label      string  `yaml:"label"`
	Distance   float64 `yaml:"distance"`
	OD         string  `yaml:"od"`
	Facilities string  `yaml:"facilities"`
	// Population overrides the dataset population table when set.
	Population string `yaml:"population"`

	FacilityOutput   string `yaml:"facility_output"`
	CorrectionOutput string `yaml:"correction_output"`
}

// Match is an external per-origin contribution added to the composite score.
type Match struct {
	Source      string        `yaml:"source"`
	IDColumn    string        `yaml:"id_column"`
	ValueColumn string        `yaml:"value_column"`
	Format      ingest.Format `yaml:"format"`
}

// Load reads a plan from a YAML file, resolves relative paths against the
// plan's directory, fills default output paths and validates it.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "plan: read %s", path)
	}
	p, err := Parse(data, filepath.Dir(path))
	if err != nil {
		return nil, eris.Wrapf(err, "plan: load %s", path)
	}
	return p, nil
}

// Parse decodes plan YAML. Relative paths are resolved against baseDir.
func Parse(data []byte, baseDir string) (*Plan, error) {
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, eris.Wrap(err, "plan: parse")
	}
	p.Columns = p.Columns.WithDefaults()

	for i := range p.Datasets {
		p.Datasets[i].resolve(baseDir)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	p.warnSharedOutputs()
	return &p, nil
}

func (d *Dataset) resolve(base string) {
	abs := func(s *string) {
		if *s != "" && !filepath.IsAbs(*s) {
			*s = filepath.Join(base, *s)
		}
	}
	abs(&d.Population)
	abs(&d.Points)
	if d.OutputDir == "" {
		d.OutputDir = d.Name
	}
	abs(&d.OutputDir)
	for i := range d.Matches {
		abs(&d.Matches[i].Source)
		if d.Matches[i].IDColumn == "" {
			d.Matches[i].IDColumn = "OriginID"
		}
	}

	out := func(s *string, name string) {
		if *s == "" {
			*s = filepath.Join(d.OutputDir, name)
			return
		}
		abs(s)
	}
	out(&d.CompositeOutput, "composite.csv")
	out(&d.JoinOutput, "joined.csv")
	out(&d.GeoJSONOutput, "joined.geojson")

	for i := range d.Thresholds {
		th := &d.Thresholds[i]
		if th.Label == "" {
			th.Label = strconv.FormatFloat(th.Distance, 'f', -1, 64)
		}
		abs(&th.OD)
		abs(&th.Facilities)
		abs(&th.Population)
		if th.Population == "" {
			th.Population = d.Population
		}
		out(&th.FacilityOutput, "facilities_"+th.Label+".csv")
		out(&th.CorrectionOutput, "corrections_"+th.Label+".csv")
	}
}

// Validate checks structural problems that make a plan unrunnable. Threshold
// distances are not checked here; a non-positive distance fails only its own
// dataset at run time.
func (p *Plan) Validate() error {
	if len(p.Datasets) == 0 {
		return eris.New("plan: no datasets")
	}
	if err := p.Columns.Validate(); err != nil {
		return eris.Wrap(err, "plan")
	}
	names := make(map[string]bool, len(p.Datasets))
	for _, d := range p.Datasets {
		if d.Name == "" {
			return eris.New("plan: dataset without name")
		}
		if names[d.Name] {
			return eris.Errorf("plan: duplicate dataset %q", d.Name)
		}
		names[d.Name] = true

		if len(d.Thresholds) == 0 {
			return eris.Errorf("plan: dataset %q has no thresholds", d.Name)
		}
		labels := make(map[string]bool, len(d.Thresholds))
		for _, th := range d.Thresholds {
			if labels[th.Label] {
				return eris.Errorf("plan: dataset %q: duplicate threshold label %q", d.Name, th.Label)
			}
			labels[th.Label] = true
			switch {
			case th.OD == "":
				return eris.Errorf("plan: dataset %q threshold %s: od source is required", d.Name, th.Label)
			case th.Facilities == "":
				return eris.Errorf("plan: dataset %q threshold %s: facilities source is required", d.Name, th.Label)
			case th.Population == "":
				return eris.Errorf("plan: dataset %q threshold %s: population source is required", d.Name, th.Label)
			}
		}
		for _, m := range d.Matches {
			if m.Source == "" || m.ValueColumn == "" {
				return eris.Errorf("plan: dataset %q: match needs source and value_column", d.Name)
			}
			if err := m.Format.Validate(); err != nil {
				return eris.Wrapf(err, "plan: dataset %q: match %s", d.Name, m.Source)
			}
		}
	}
	return nil
}

// OutputPaths maps every output path to the units that write it.
func (p *Plan) OutputPaths() map[string][]string {
	out := make(map[string][]string)
	for _, d := range p.Datasets {
		for _, th := range d.Thresholds {
			out[th.FacilityOutput] = append(out[th.FacilityOutput], d.Name+"/"+th.Label)
			out[th.CorrectionOutput] = append(out[th.CorrectionOutput], d.Name+"/"+th.Label)
		}
		out[d.CompositeOutput] = append(out[d.CompositeOutput], d.Name)
		if d.Points != "" {
			out[d.JoinOutput] = append(out[d.JoinOutput], d.Name)
			out[d.GeoJSONOutput] = append(out[d.GeoJSONOutput], d.Name)
		}
	}
	return out
}

// warnSharedOutputs logs paths written by more than one unit. The last
// writer wins for those files.
func (p *Plan) warnSharedOutputs() {
	for path, units := range p.OutputPaths() {
		if len(units) > 1 {
			zap.L().Warn("plan: output path shared by several units, last writer wins",
				zap.String("path", path),
				zap.Strings("units", units),
			)
		}
	}
}

// SharedOutputs returns the output paths written by more than one unit.
func (p *Plan) SharedOutputs() []string {
	var out []string
	for path, units := range p.OutputPaths() {
		if len(units) > 1 {
			out = append(out, path)
		}
	}
	return out
}
