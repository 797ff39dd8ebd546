package firmware

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/template"

	config "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Config"
)

// HeaderName is the file the firmware sketch includes
const HeaderName = "config.h"

var headerTemplate = template.Must(template.New(HeaderName).Funcs(template.FuncMap{
	"cstr": cString,
}).Parse(`/**
 * Device configuration generated by gardenctl{{ if .Source }} from {{ .Source }}{{ end }}.
 * Regenerate with: gardenctl config render -f <profile.yaml>
 */
#ifndef SMARTGARDEN_CONFIG_H
#define SMARTGARDEN_CONFIG_H

// ===================== WiFi =====================
const char* WIFI_SSID = {{ cstr .WiFiSSID }};
const char* WIFI_PASSWORD = {{ cstr .WiFiPassword }};

// ===================== MQTT =====================
// Docker broker: MQTT_BROKER is the IP of the Docker host, MQTT_PORT {{ .ContainerPort }}.
// Local broker without Docker: MQTT_PORT {{ .NativePort }}.
const char* MQTT_BROKER = {{ cstr .MQTTBroker }};
const int MQTT_PORT = {{ .MQTTPort }};
const char* MQTT_USERNAME = {{ cstr .MQTTUsername }};
const char* MQTT_PASSWORD = {{ cstr .MQTTPassword }};

// Unique per device on this broker
const char* DEVICE_UID = {{ cstr .DeviceUID }};

#endif
`))

type headerData struct {
	config.DeviceProfile
	ContainerPort int
	NativePort    int
}

// Render writes config.h for profile. Invalid profiles are refused so a bad
// header is never flashed.
func Render(w io.Writer, profile config.DeviceProfile) error {
	if err := profile.Validate().Err(); err != nil {
		return err
	}

	var buf bytes.Buffer
	data := headerData{
		DeviceProfile: profile,
		ContainerPort: config.ContainerBrokerPort,
		NativePort:    config.NativeBrokerPort,
	}
	if err := headerTemplate.Execute(&buf, data); err != nil {
		return fmt.Errorf("failed to render %s: %w", HeaderName, err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// cString quotes s as a C string literal. Control and non-ASCII bytes become
// three-digit octal escapes, so UTF-8 SSIDs survive byte for byte.
func cString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' || c == '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		case c == '\n':
			b.WriteString(`\n`)
		case c == '\t':
			b.WriteString(`\t`)
		case c < 0x20 || c >= 0x7f:
			b.WriteString(`\` + strconv.FormatInt(int64(c)|0o1000, 8)[1:])
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}
