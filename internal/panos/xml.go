package panos

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/netops-tools/panos-ike/internal/ike"
)

// ProfilesXPath is the container of IKE crypto profiles on a firewall
const ProfilesXPath = "/config/devices/entry[@name='localhost.localdomain']/network/ike/crypto-profiles/ike-crypto-profiles"

// EntryXPath addresses a single profile by name
func EntryXPath(name string) string {
	return fmt.Sprintf("%s/entry[@name='%s']", ProfilesXPath, name)
}

// entry is the on-device representation of an IKE crypto profile
type entry struct {
	XMLName    xml.Name  `xml:"entry"`
	Name       string    `xml:"name,attr"`
	Hash       []string  `xml:"hash>member"`
	DHGroup    []string  `xml:"dh-group>member"`
	Encryption []string  `xml:"encryption>member"`
	Lifetime   *lifetime `xml:"lifetime,omitempty"`
}

type lifetime struct {
	Seconds *int `xml:"seconds,omitempty"`
	Minutes *int `xml:"minutes,omitempty"`
	Hours   *int `xml:"hours,omitempty"`
	Days    *int `xml:"days,omitempty"`
}

func entryFromProfile(p ike.Profile) entry {
	e := entry{
		Name:       p.Name,
		Hash:       strs(p.Authentication),
		DHGroup:    strs(p.DHGroups),
		Encryption: strs(p.Encryption),
	}
	if !p.Lifetime.IsZero() {
		v := p.Lifetime.Value
		lt := &lifetime{}
		switch p.Lifetime.Unit {
		case ike.Seconds:
			lt.Seconds = &v
		case ike.Minutes:
			lt.Minutes = &v
		case ike.Hours:
			lt.Hours = &v
		case ike.Days:
			lt.Days = &v
		}
		e.Lifetime = lt
	}
	return e
}

// profile converts the entry. A missing lifetime means the firewall default.
func (e entry) profile() ike.Profile {
	p := ike.Profile{
		Name:           e.Name,
		DHGroups:       enums[ike.DHGroup](e.DHGroup),
		Authentication: enums[ike.Hash](e.Hash),
		Encryption:     enums[ike.Cipher](e.Encryption),
		Lifetime:       ike.DefaultLifetime,
	}
	if lt := e.Lifetime; lt != nil {
		switch {
		case lt.Seconds != nil:
			p.Lifetime = ike.Lifetime{Unit: ike.Seconds, Value: *lt.Seconds}
		case lt.Minutes != nil:
			p.Lifetime = ike.Lifetime{Unit: ike.Minutes, Value: *lt.Minutes}
		case lt.Hours != nil:
			p.Lifetime = ike.Lifetime{Unit: ike.Hours, Value: *lt.Hours}
		case lt.Days != nil:
			p.Lifetime = ike.Lifetime{Unit: ike.Days, Value: *lt.Days}
		}
	}
	return p
}

func (e entry) element() (string, error) {
	b, err := xml.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("failed to encode profile '%s': %w", e.Name, err)
	}
	return string(b), nil
}

func strs[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}

func enums[T ~string](values []string) []T {
	out := make([]T, len(values))
	for i, v := range values {
		out[i] = T(strings.TrimSpace(v))
	}
	return out
}

// message collects the text PAN-OS puts in <msg>, either directly or as <line> children
type message struct {
	Text  string   `xml:",chardata"`
	Lines []string `xml:"line"`
}

func (m message) String() string {
	if len(m.Lines) > 0 {
		return strings.Join(trimAll(m.Lines), "; ")
	}
	return strings.TrimSpace(m.Text)
}

func trimAll(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

// envelope is the common shape of every API response
type envelope struct {
	XMLName   xml.Name `xml:"response"`
	Status    string   `xml:"status,attr"`
	Code      string   `xml:"code,attr"`
	Msg       message  `xml:"msg"`
	ResultMsg message  `xml:"result>msg"`
}

func (e envelope) message() string {
	if m := e.Msg.String(); m != "" {
		return m
	}
	return e.ResultMsg.String()
}

type keygenResponse struct {
	Key string `xml:"result>key"`
}

// SystemInfo is the subset of "show system info" the client uses
type SystemInfo struct {
	Hostname  string `xml:"hostname"`
	Model     string `xml:"model"`
	Serial    string `xml:"serial"`
	SWVersion string `xml:"sw-version"`
}

type systemInfoResponse struct {
	System SystemInfo `xml:"result>system"`
}

type listResponse struct {
	Entries []entry `xml:"result>ike-crypto-profiles>entry"`
}

type entryResponse struct {
	Entries []entry `xml:"result>entry"`
}

type commitResponse struct {
	Job string `xml:"result>job"`
}

type jobResponse struct {
	Job struct {
		ID       string  `xml:"id"`
		Status   string  `xml:"status"`
		Result   string  `xml:"result"`
		Progress string  `xml:"progress"`
		Details  message `xml:"details"`
	} `xml:"result>job"`
}
