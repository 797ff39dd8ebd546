package config

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Template values shipped with the firmware's example header
const (
	TemplateWiFiSSID     = "YourWiFiSSID"
	TemplateWiFiPassword = "YourWiFiPassword"
	TemplateMQTTBroker   = "192.168.1.100"
	TemplateMQTTPort     = 18883
	TemplateMQTTUsername = "iot_admin"
	TemplateMQTTPassword = "123456"
	TemplateDeviceUID    = DefaultDeviceUID

	// ContainerBrokerPort is the docker-compose mapping; NativeBrokerPort a local broker
	ContainerBrokerPort = 18883
	NativeBrokerPort    = 1883

	maxDeviceUIDLength = 100
	maxHostnameLength  = 253
	maxLabelLength     = 63
	profileEnvPrefix   = "GARDEN"
)

var (
	deviceUIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)
	hostLabelPattern = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9-]*[A-Za-z0-9])?$`)
)

// DeviceProfile is the configuration flashed into one ESP32 node
type DeviceProfile struct {
	WiFiSSID     string `mapstructure:"wifi_ssid" yaml:"wifi_ssid" validate:"wifi_ssid"`
	WiFiPassword string `mapstructure:"wifi_password" yaml:"wifi_password" validate:"wifi_password"`
	MQTTBroker   string `mapstructure:"mqtt_broker" yaml:"mqtt_broker" validate:"required,mqtt_broker"`
	MQTTPort     int    `mapstructure:"mqtt_port" yaml:"mqtt_port" validate:"min=1,max=65535"`
	MQTTUsername string `mapstructure:"mqtt_username" yaml:"mqtt_username" validate:"required_with=MQTTPassword"`
	MQTTPassword string `mapstructure:"mqtt_password" yaml:"mqtt_password"`
	DeviceUID    string `mapstructure:"device_uid" yaml:"device_uid" validate:"device_uid"`

	// Source is the file the profile was loaded from, if any
	Source string `mapstructure:"-" yaml:"-"`
}

// TemplateProfile returns the profile matching the firmware's example header
func TemplateProfile() DeviceProfile {
	return DeviceProfile{
		WiFiSSID:     TemplateWiFiSSID,
		WiFiPassword: TemplateWiFiPassword,
		MQTTBroker:   TemplateMQTTBroker,
		MQTTPort:     TemplateMQTTPort,
		MQTTUsername: TemplateMQTTUsername,
		MQTTPassword: TemplateMQTTPassword,
		DeviceUID:    TemplateDeviceUID,
	}
}

// Issue is a single validation finding
type Issue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s", i.Field, i.Message)
}

// ValidationReport separates fatal errors from advisory warnings
type ValidationReport struct {
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
}

// OK reports whether the profile has no errors
func (r ValidationReport) OK() bool {
	return len(r.Errors) == 0
}

// Err folds the errors into one error value, nil when valid
func (r ValidationReport) Err() error {
	if r.OK() {
		return nil
	}
	msgs := make([]string, 0, len(r.Errors))
	for _, issue := range r.Errors {
		msgs = append(msgs, issue.String())
	}
	return errors.New("invalid device profile: " + strings.Join(msgs, "; "))
}

// LoadProfile reads a YAML profile; GARDEN_* environment variables override file values
func LoadProfile(path string) (*DeviceProfile, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(profileEnvPrefix)
	v.AutomaticEnv()

	defaults := TemplateProfile()
	v.SetDefault("mqtt_port", defaults.MQTTPort)
	for _, key := range []string{"wifi_ssid", "wifi_password", "mqtt_broker", "mqtt_username", "mqtt_password", "device_uid"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read profile %s: %w", path, err)
		}
	}

	var profile DeviceProfile
	if err := v.Unmarshal(&profile); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}
	profile.Source = path
	return &profile, nil
}

var (
	profileValidator     *validator.Validate
	profileValidatorOnce sync.Once
)

// Validator returns the shared validator with the garden rules registered
func Validator() *validator.Validate {
	profileValidatorOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		if err := RegisterGardenRules(v); err != nil {
			panic(fmt.Errorf("garden validation rules: %w", err))
		}
		profileValidator = v
	})
	return profileValidator
}

// RegisterGardenRules adds device_uid, mqtt_broker, wifi_ssid and wifi_password to a validator.
// The HTTP layer registers the same rules with gin's binding engine.
func RegisterGardenRules(v *validator.Validate) error {
	rules := map[string]validator.Func{
		"device_uid":    func(fl validator.FieldLevel) bool { return ValidDeviceUID(fl.Field().String()) },
		"mqtt_broker":   func(fl validator.FieldLevel) bool { return ValidBrokerHost(fl.Field().String()) },
		"wifi_ssid":     func(fl validator.FieldLevel) bool { return validSSID(fl.Field().String()) },
		"wifi_password": func(fl validator.FieldLevel) bool { return validWiFiPassword(fl.Field().String()) },
	}
	for tag, fn := range rules {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return fmt.Errorf("failed to register %s: %w", tag, err)
		}
	}
	return nil
}

// ValidDeviceUID reports whether uid is usable as an MQTT topic level
func ValidDeviceUID(uid string) bool {
	return uid != "" && len(uid) <= maxDeviceUIDLength && deviceUIDPattern.MatchString(uid)
}

// ValidBrokerHost accepts an IPv4 or IPv6 literal or an RFC 1123 host name.
// A dotted name made only of digits must parse as IPv4; otherwise the top
// label has to contain a letter, so typos like 192.168.1.300 are rejected.
func ValidBrokerHost(host string) bool {
	if host == "" || len(host) > maxHostnameLength {
		return false
	}
	if strings.Contains(host, ":") {
		return net.ParseIP(host) != nil
	}

	labels := strings.Split(strings.TrimSuffix(host, "."), ".")
	numeric := true
	for _, label := range labels {
		if len(label) > maxLabelLength || !hostLabelPattern.MatchString(label) {
			return false
		}
		if !allDigits(label) {
			numeric = false
		}
	}
	if numeric {
		ip := net.ParseIP(host)
		return ip != nil && ip.To4() != nil
	}
	return !allDigits(labels[len(labels)-1])
}

func allDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return s != ""
}

func validSSID(ssid string) bool {
	return len(ssid) >= 1 && len(ssid) <= 32
}

// validWiFiPassword accepts an open network, a WPA2 passphrase or a raw 64 hex digit PSK
func validWiFiPassword(pw string) bool {
	n := len(pw)
	switch {
	case n == 0:
		return true
	case n >= 8 && n <= 63:
		return true
	case n == 64:
		for _, c := range pw {
			if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
				return false
			}
		}
		return true
	}
	return false
}

var fieldMessages = map[string]string{
	"wifi_ssid":     "must be 1 to 32 bytes",
	"wifi_password": "must be empty, 8 to 63 characters, or 64 hex digits",
	"mqtt_broker":   "must be a valid hostname or IP address",
	"required":      "is required",
	"min":           "must be between 1 and 65535",
	"max":           "must be between 1 and 65535",
	"required_with": "is required when MQTT_PASSWORD is set",
	"device_uid":    "must be 1 to 100 characters of [A-Za-z0-9_.-]",
}

var fieldNames = map[string]string{
	"WiFiSSID":     "WIFI_SSID",
	"WiFiPassword": "WIFI_PASSWORD",
	"MQTTBroker":   "MQTT_BROKER",
	"MQTTPort":     "MQTT_PORT",
	"MQTTUsername": "MQTT_USERNAME",
	"MQTTPassword": "MQTT_PASSWORD",
	"DeviceUID":    "DEVICE_UID",
}

// Validate checks the profile and collects warnings for template leftovers
func (p DeviceProfile) Validate() ValidationReport {
	var report ValidationReport

	if err := Validator().Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				msg, ok := fieldMessages[fe.Tag()]
				if !ok {
					msg = "failed " + fe.Tag()
				}
				report.Errors = append(report.Errors, Issue{Field: fieldNames[fe.StructField()], Message: msg})
			}
		} else {
			report.Errors = append(report.Errors, Issue{Field: "profile", Message: err.Error()})
		}
	}

	report.Warnings = p.warnings()
	return report
}

func (p DeviceProfile) warnings() []Issue {
	var out []Issue
	if p.WiFiSSID == TemplateWiFiSSID {
		out = append(out, Issue{Field: "WIFI_SSID", Message: "still the template placeholder"})
	}
	if p.WiFiPassword == TemplateWiFiPassword {
		out = append(out, Issue{Field: "WIFI_PASSWORD", Message: "still the template placeholder"})
	}
	if p.MQTTBroker == TemplateMQTTBroker {
		out = append(out, Issue{Field: "MQTT_BROKER", Message: "still the example address; use the IP of the machine running the broker"})
	}
	if p.MQTTUsername == TemplateMQTTUsername && p.MQTTPassword == TemplateMQTTPassword {
		out = append(out, Issue{Field: "MQTT_PASSWORD", Message: "template broker credentials are in use"})
	}
	return out
}

// DuplicateUID lists the profiles sharing one DEVICE_UID
type DuplicateUID struct {
	DeviceUID string   `json:"device_uid"`
	Sources   []string `json:"sources"`
}

// CheckFleet reports every DEVICE_UID used by more than one profile, sorted by UID.
// Profiles without a Source are labelled by their position.
func CheckFleet(profiles []DeviceProfile) []DuplicateUID {
	seen := make(map[string][]string)
	for i, p := range profiles {
		label := p.Source
		if label == "" {
			label = fmt.Sprintf("#%d", i+1)
		}
		seen[p.DeviceUID] = append(seen[p.DeviceUID], label)
	}

	var dups []DuplicateUID
	for uid, sources := range seen {
		if len(sources) > 1 {
			dups = append(dups, DuplicateUID{DeviceUID: uid, Sources: sources})
		}
	}
	sort.Slice(dups, func(i, j int) bool { return dups[i].DeviceUID < dups[j].DeviceUID })
	return dups
}
