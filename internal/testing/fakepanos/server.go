// Package fakepanos is an in-memory PAN-OS firewall speaking enough of the
// XML API to exercise the IKE crypto profile client end to end.
package fakepanos

import (
	"encoding/xml"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/netops-tools/panos-ike/internal/ike"
)

const profilesXPath = "/config/devices/entry[@name='localhost.localdomain']/network/ike/crypto-profiles/ike-crypto-profiles"

var (
	entryXPathPattern = regexp.MustCompile(`^` + regexp.QuoteMeta(profilesXPath) + `/entry\[@name='([^']+)'\]$`)
	jobIDPattern      = regexp.MustCompile(`<show><jobs><id>(\d+)</id></jobs></show>`)
)

// Entry mirrors the profile XML stored on the firewall
type Entry struct {
	XMLName    xml.Name  `xml:"entry"`
	Name       string    `xml:"name,attr"`
	Hash       []string  `xml:"hash>member"`
	DHGroup    []string  `xml:"dh-group>member"`
	Encryption []string  `xml:"encryption>member"`
	Lifetime   *Lifetime `xml:"lifetime,omitempty"`
}

// Lifetime mirrors the lifetime element; exactly one field is set
type Lifetime struct {
	Seconds *int `xml:"seconds,omitempty"`
	Minutes *int `xml:"minutes,omitempty"`
	Hours   *int `xml:"hours,omitempty"`
	Days    *int `xml:"days,omitempty"`
}

type job struct {
	id        int
	polls     int
	remaining int
	result    string
	details   string
}

// Server is a fake firewall. All exported fields may be changed between requests.
type Server struct {
	*httptest.Server

	Username string
	Password string
	APIKey   string
	Model    string

	// CommitResult is the final result of commit jobs, OK unless set to FAIL
	CommitResult string
	// CommitPolls is how many job polls report ACT before FIN
	CommitPolls int

	mu      sync.Mutex
	entries []Entry
	dirty   bool
	jobs    map[int]*job
	nextJob int
	calls   map[string]int
	fail    map[string]string
	keys    []string
}

// New starts a fake firewall over TLS with admin/admin credentials
func New() *Server {
	s := &Server{
		Username:     "admin",
		Password:     "admin",
		APIKey:       "LUFRPT1fakekey==",
		Model:        "PA-VM",
		CommitResult: "OK",
		jobs:         make(map[int]*job),
		nextJob:      1,
		calls:        make(map[string]int),
		fail:         make(map[string]string),
	}
	s.Server = httptest.NewTLSServer(http.HandlerFunc(s.handle))
	return s
}

// Address returns the host:port to use as a device address
func (s *Server) Address() string {
	return strings.TrimPrefix(s.URL, "https://")
}

// Seed appends profiles in order, allowing duplicate names
func (s *Server) Seed(profiles ...ike.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range profiles {
		s.entries = append(s.entries, FromProfile(p))
	}
}

// SeedEntries appends raw entries, e.g. ones without a lifetime
func (s *Server) SeedEntries(entries ...Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entries...)
}

// Entries returns a copy of the stored entries in order
func (s *Server) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.entries...)
}

// Dirty reports whether the candidate configuration has uncommitted changes
func (s *Server) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// Calls returns how many requests of a kind were served.
// Kinds are keygen, op, commit and the config actions get, set, edit and delete.
func (s *Server) Calls(kind string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[kind]
}

// Fail makes every following request of kind return an API error with msg
func (s *Server) Fail(kind, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[kind] = msg
}

// KeysSeen returns the API keys presented on authenticated requests
func (s *Server) KeysSeen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.keys...)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/" {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, "", "malformed request")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kind := r.Form.Get("type")
	if kind == "config" {
		kind = r.Form.Get("action")
	}
	s.calls[kind]++

	if msg, ok := s.fail[kind]; ok {
		writeError(w, "", msg)
		return
	}

	if kind == "keygen" {
		s.keygen(w, r)
		return
	}

	key := r.Header.Get("X-PAN-KEY")
	if key == "" {
		key = r.Form.Get("key")
	}
	if key != s.APIKey {
		w.WriteHeader(http.StatusForbidden)
		writeError(w, "403", "Invalid Credential")
		return
	}
	s.keys = append(s.keys, key)

	switch kind {
	case "op":
		s.op(w, r.Form.Get("cmd"))
	case "commit":
		s.commit(w)
	case "get":
		s.get(w, r.Form.Get("xpath"))
	case "set":
		s.set(w, r.Form.Get("xpath"), r.Form.Get("element"))
	case "edit":
		s.edit(w, r.Form.Get("xpath"), r.Form.Get("element"))
	case "delete":
		s.delete(w, r.Form.Get("xpath"))
	default:
		writeError(w, "", "Unsupported request type")
	}
}

func (s *Server) keygen(w http.ResponseWriter, r *http.Request) {
	if r.Form.Get("user") != s.Username || r.Form.Get("password") != s.Password {
		w.WriteHeader(http.StatusForbidden)
		writeError(w, "403", "Invalid credentials.")
		return
	}
	writeSuccess(w, "", "<result><key>"+s.APIKey+"</key></result>")
}

func (s *Server) op(w http.ResponseWriter, cmd string) {
	switch {
	case cmd == "<show><system><info></info></system></show>":
		writeSuccess(w, "", fmt.Sprintf(
			"<result><system><hostname>fake-fw</hostname><model>%s</model><serial>007000000000001</serial><sw-version>10.2.4</sw-version></system></result>",
			s.Model))
	case jobIDPattern.MatchString(cmd):
		id, _ := strconv.Atoi(jobIDPattern.FindStringSubmatch(cmd)[1])
		j, ok := s.jobs[id]
		if !ok {
			writeError(w, "", fmt.Sprintf("job %d not found", id))
			return
		}
		j.polls++
		status, result := "FIN", j.result
		if j.remaining > 0 {
			j.remaining--
			status, result = "ACT", "PEND"
		}
		writeSuccess(w, "", fmt.Sprintf(
			"<result><job><id>%d</id><type>Commit</type><status>%s</status><result>%s</result><progress>100</progress><details><line>%s</line></details></job></result>",
			j.id, status, result, j.details))
	default:
		writeError(w, "", "Unknown command")
	}
}

func (s *Server) commit(w http.ResponseWriter) {
	if !s.dirty {
		writeSuccess(w, "19", "<msg>There are no changes to commit.</msg>")
		return
	}

	j := &job{id: s.nextJob, remaining: s.CommitPolls, result: s.CommitResult}
	if j.result == "OK" {
		j.details = "Configuration committed successfully"
		s.dirty = false
	} else {
		j.details = "Validation Error: ike-crypto-profiles is invalid"
	}
	s.jobs[j.id] = j
	s.nextJob++

	writeSuccess(w, "19", fmt.Sprintf(
		"<result><msg><line>Commit job enqueued with jobid %d</line></msg><job>%d</job></result>", j.id, j.id))
}

func (s *Server) get(w http.ResponseWriter, xpath string) {
	if xpath == profilesXPath {
		if len(s.entries) == 0 {
			writeSuccess(w, "19", `<result total-count="0" count="0"/>`)
			return
		}
		body, err := xml.Marshal(s.entries)
		if err != nil {
			writeError(w, "", err.Error())
			return
		}
		writeSuccess(w, "19", fmt.Sprintf(`<result total-count="1" count="1"><ike-crypto-profiles>%s</ike-crypto-profiles></result>`, body))
		return
	}

	name, ok := entryName(xpath)
	if !ok {
		writeError(w, "", "Invalid xpath")
		return
	}
	for _, e := range s.entries {
		if e.Name == name {
			body, err := xml.Marshal(e)
			if err != nil {
				writeError(w, "", err.Error())
				return
			}
			writeSuccess(w, "19", fmt.Sprintf(`<result total-count="1" count="1">%s</result>`, body))
			return
		}
	}
	writeSuccess(w, "19", `<result total-count="0" count="0"/>`)
}

func (s *Server) set(w http.ResponseWriter, xpath, element string) {
	if xpath != profilesXPath {
		writeError(w, "", "Invalid xpath")
		return
	}
	var e Entry
	if err := xml.Unmarshal([]byte(element), &e); err != nil || e.Name == "" {
		writeError(w, "", "Malformed element")
		return
	}

	if i := s.index(e.Name); i >= 0 {
		s.entries[i] = e
	} else {
		s.entries = append(s.entries, e)
	}
	s.dirty = true
	writeSuccess(w, "20", "<msg>command succeeded</msg>")
}

func (s *Server) edit(w http.ResponseWriter, xpath, element string) {
	name, ok := entryName(xpath)
	if !ok {
		writeError(w, "", "Invalid xpath")
		return
	}
	var e Entry
	if err := xml.Unmarshal([]byte(element), &e); err != nil {
		writeError(w, "", "Malformed element")
		return
	}
	if e.Name != name {
		writeError(w, "", fmt.Sprintf("edit breaks config validity: name mismatch %s", e.Name))
		return
	}

	if i := s.index(name); i >= 0 {
		s.entries[i] = e
	} else {
		s.entries = append(s.entries, e)
	}
	s.dirty = true
	writeSuccess(w, "20", "<msg>command succeeded</msg>")
}

func (s *Server) delete(w http.ResponseWriter, xpath string) {
	name, ok := entryName(xpath)
	if !ok {
		writeError(w, "", "Invalid xpath")
		return
	}
	if i := s.index(name); i >= 0 {
		s.entries = append(s.entries[:i], s.entries[i+1:]...)
		s.dirty = true
		writeSuccess(w, "20", "<msg>command succeeded</msg>")
		return
	}
	writeSuccess(w, "7", "<msg>Object doesn't exist</msg>")
}

func (s *Server) index(name string) int {
	for i, e := range s.entries {
		if e.Name == name {
			return i
		}
	}
	return -1
}

func entryName(xpath string) (string, bool) {
	m := entryXPathPattern.FindStringSubmatch(xpath)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func writeSuccess(w http.ResponseWriter, code, inner string) {
	w.Header().Set("Content-Type", "application/xml")
	if code == "" {
		fmt.Fprintf(w, `<response status="success">%s</response>`, inner)
		return
	}
	fmt.Fprintf(w, `<response status="success" code="%s">%s</response>`, code, inner)
}

func writeError(w http.ResponseWriter, code, msg string) {
	w.Header().Set("Content-Type", "application/xml")
	var escaped strings.Builder
	_ = xml.EscapeText(&escaped, []byte(msg))
	if code == "" {
		fmt.Fprintf(w, `<response status="error"><msg><line>%s</line></msg></response>`, escaped.String())
		return
	}
	fmt.Fprintf(w, `<response status="error" code="%s"><result><msg>%s</msg></result></response>`, code, escaped.String())
}

// FromProfile converts a profile to its stored form
func FromProfile(p ike.Profile) Entry {
	e := Entry{Name: p.Name}
	for _, v := range p.Authentication {
		e.Hash = append(e.Hash, string(v))
	}
	for _, v := range p.DHGroups {
		e.DHGroup = append(e.DHGroup, string(v))
	}
	for _, v := range p.Encryption {
		e.Encryption = append(e.Encryption, string(v))
	}
	if !p.Lifetime.IsZero() {
		v := p.Lifetime.Value
		e.Lifetime = &Lifetime{}
		switch p.Lifetime.Unit {
		case ike.Seconds:
			e.Lifetime.Seconds = &v
		case ike.Minutes:
			e.Lifetime.Minutes = &v
		case ike.Hours:
			e.Lifetime.Hours = &v
		case ike.Days:
			e.Lifetime.Days = &v
		}
	}
	return e
}
