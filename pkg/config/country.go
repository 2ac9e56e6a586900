package config

// CountryConfig describes one deployment: its forms, data types, rule
// catalogue, links, locations and alert settings. Loaded once at startup
// from the YAML document named by Config.CountryConfigFile.
type CountryConfig struct {
	Name string `yaml:"name"`

	// Tables maps form names onto their raw storage tables.
	Tables map[string]string `yaml:"tables"`

	// TablesUUID overrides the uuid field per form. The default is
	// "meta/instanceID".
	TablesUUID map[string]string `yaml:"tables_uuid"`

	// RequireCaseReport lists forms restricted to case-reporting clinics.
	RequireCaseReport []string `yaml:"require_case_report"`

	// NoDeviceID lists forms exempt from device gating.
	NoDeviceID []string `yaml:"no_deviceid"`

	// AllowEnketo maps forms onto device-id substrings accepted in place
	// of a registered device.
	AllowEnketo map[string][]string `yaml:"allow_enketo"`

	// QualityControl lists forms whose import rules run.
	QualityControl []string `yaml:"quality_control"`

	// ExclusionLists maps forms onto CSV files of uuids to drop.
	ExclusionLists map[string][]string `yaml:"exclusion_lists"`

	// Fraction samples a form at the given rate in [0,1]; unset means 1.
	Fraction map[string]float64 `yaml:"fraction"`

	// OnlyImportAfter drops submissions older than the date (per form).
	OnlyImportAfter map[string]string `yaml:"only_import_after"`

	// InitialVisitControl configures duplicate "new" visit demotion.
	InitialVisitControl map[string]InitialVisit `yaml:"initial_visit_control"`

	// LinksFile names the link definition YAML in the config directory.
	LinksFile string `yaml:"links_file"`

	// CodesFile names the rule catalogue CSV in the config directory.
	CodesFile string `yaml:"codes_file"`

	// DataTypes declares the coded data types.
	DataTypes []DataType `yaml:"data_types"`

	// Locations names the bootstrap files in the config directory.
	Locations LocationFiles `yaml:"locations"`

	// EpiWeek is "international", "day:<weekday>" or "explicit".
	EpiWeek string `yaml:"epi_week"`

	// EpiWeekStarts maps years onto explicit start dates.
	EpiWeekStarts map[int]string `yaml:"epi_week_starts"`

	// EpiWeek53Strategy is leave_as_is, include_in_52 or include_in_1.
	EpiWeek53Strategy string `yaml:"epi_week_53_strategy"`

	// AlertData maps forms onto the fields copied into alert variables,
	// alert field name -> source column.
	AlertData map[string]map[string]string `yaml:"alert_data"`

	// AlertIDLength is the uuid suffix length used both for alert ids
	// and for alert_match links.
	AlertIDLength int `yaml:"alert_id_length"`
}

// InitialVisit configures the duplicate-visit demotion for one form.
type InitialVisit struct {
	// Identifiers is the natural key (for example patientid, icd_code).
	Identifiers []string `yaml:"identifiers"`

	VisitColumn string `yaml:"visit_column"`
	NewValue    string `yaml:"new_value"`
	ReturnValue string `yaml:"return_value"`

	ModuleColumn string `yaml:"module_column"`
	Module       string `yaml:"module"`

	DateColumn string `yaml:"date_column"`
}

// DataType declares one coded data type.
type DataType struct {
	Name string `yaml:"name"`

	// Form is the main source form.
	Form string `yaml:"form"`

	// DateColumn yields the record date.
	DateColumn string `yaml:"date"`

	// UUIDColumn overrides the uuid field for this type.
	UUIDColumn string `yaml:"uuid"`

	// Var is the variable id stamped 1 on every coded record of the type.
	Var string `yaml:"var"`

	// Location is the resolver mode string.
	Location string `yaml:"location"`

	// Condition is an optional "col:val" gate on the main form payload.
	Condition string `yaml:"condition"`

	// MultipleRow is a comma list of $-templates expanding one
	// submission into numbered sub-records.
	MultipleRow string `yaml:"multiple_row"`
}

// LocationFiles names the location bootstrap files.
type LocationFiles struct {
	Regions   string `yaml:"regions"`
	Zones     string `yaml:"zones"`
	Districts string `yaml:"districts"`
	Clinics   string `yaml:"clinics"`
	Devices   string `yaml:"devices"`
	GeoJSON   string `yaml:"geojson"`
}

// UUIDField returns the uuid field for a form.
func (cc *CountryConfig) UUIDField(form string) string {
	if f, ok := cc.TablesUUID[form]; ok && f != "" {
		return f
	}
	return "meta/instanceID"
}

// MainForms maps data-type names onto their main forms, for the rule
// catalogue's match index.
func (cc *CountryConfig) MainForms() map[string]string {
	out := make(map[string]string, len(cc.DataTypes))
	for _, dt := range cc.DataTypes {
		out[dt.Name] = dt.Form
	}
	return out
}

// Validate checks the referential shape of the country config.
func (cc *CountryConfig) Validate() error {
	if len(cc.Tables) == 0 {
		return ValidationError("country config declares no tables")
	}
	if len(cc.DataTypes) == 0 {
		return ValidationError("country config declares no data types")
	}
	for _, dt := range cc.DataTypes {
		if dt.Name == "" || dt.Form == "" || dt.DateColumn == "" || dt.Var == "" {
			return ValidationError("data type " + dt.Name + " is missing name, form, date or var")
		}
		if _, ok := cc.Tables[dt.Form]; !ok {
			return ValidationError("data type " + dt.Name + " references unknown form " + dt.Form)
		}
	}
	for form, iv := range cc.InitialVisitControl {
		if len(iv.Identifiers) == 0 || iv.VisitColumn == "" || iv.DateColumn == "" {
			return ValidationError("initial_visit_control for " + form + " is incomplete")
		}
	}
	if cc.AlertIDLength <= 0 {
		return ValidationError("alert_id_length must be positive")
	}
	return nil
}
