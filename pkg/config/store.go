package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"

	"github.com/cuemby/leadercheck/pkg/log"
	"github.com/cuemby/leadercheck/pkg/types"
	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"
	"gopkg.in/ini.v1"
)

// LeaderKey is the key holding the expected leader hostname in each section
const LeaderKey = "master"

const defaultFileMode os.FileMode = 0644

// Store reads and writes the expected leader of each cluster from an
// INI-style section file:
//
//	[MST]
//	master = wiso-test-01
//
//	[MSS]
//	master = wiso-prod-02
//
// Key names are case-insensitive, section names are not. Values are read
// literally: inline comments and surrounding quotes are part of the value,
// and indented lines continue the previous value.
type Store struct {
	path   string
	logger zerolog.Logger
}

// NewStore creates a store backed by the file at path
func NewStore(path string) *Store {
	return &Store{
		path:   path,
		logger: log.WithComponent("config"),
	}
}

// Path returns the backing file path
func (s *Store) Path() string {
	return s.path
}

var loadOptions = ini.LoadOptions{
	InsensitiveKeys:            true,
	IgnoreInlineComment:        true,
	PreserveSurroundedQuote:    true,
	IgnoreContinuation:         true,
	AllowPythonMultilineValues: true,
}

func (s *Store) load() (*ini.File, error) {
	f, err := ini.LoadSources(loadOptions, s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config store %s: %w", s.path, err)
	}
	return f, nil
}

// ExpectedLeader returns the stored leader hostname for cluster
func (s *Store) ExpectedLeader(cluster types.ClusterID) (string, error) {
	f, err := s.load()
	if err != nil {
		return "", err
	}

	sec, err := section(f, cluster)
	if err != nil {
		return "", err
	}

	if !sec.HasKey(LeaderKey) {
		return "", fmt.Errorf("%w: [%s] in %s has no %q", types.ErrMissingLeaderKey, cluster, s.path, LeaderKey)
	}

	// Strip spurious whitespace left by hand edits
	return strings.TrimSpace(sec.Key(LeaderKey).String()), nil
}

// SetExpectedLeader persists host as the expected leader of cluster. Only
// the leader line of the cluster's section changes; every other byte of the
// file is kept. The file is replaced atomically and synced before
// returning.
func (s *Store) SetExpectedLeader(cluster types.ClusterID, host string) error {
	if host == types.NoLeader {
		return s.persistErr(cluster, errors.New("refusing to store an empty leader"))
	}

	f, err := s.load()
	if err != nil {
		return s.persistErr(cluster, err)
	}
	if _, err := section(f, cluster); err != nil {
		return s.persistErr(cluster, err)
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return s.persistErr(cluster, err)
	}
	updated, err := setLeaderLine(data, string(cluster), host)
	if err != nil {
		return s.persistErr(cluster, err)
	}
	if err := verifyLeader(updated, cluster, host); err != nil {
		return s.persistErr(cluster, err)
	}

	mode := defaultFileMode
	if info, err := os.Stat(s.path); err == nil {
		mode = info.Mode().Perm()
	}

	if err := renameio.WriteFile(s.path, updated, mode); err != nil {
		return s.persistErr(cluster, err)
	}

	s.logger.Info().
		Str("cluster", cluster.String()).
		Str("leader", host).
		Str("path", s.path).
		Msg("Expected leader updated")
	return nil
}

// Clusters returns the sorted list of configured cluster identifiers
func (s *Store) Clusters() ([]types.ClusterID, error) {
	f, err := s.load()
	if err != nil {
		return nil, err
	}

	names := sectionNames(f)
	clusters := make([]types.ClusterID, 0, len(names))
	for _, name := range names {
		clusters = append(clusters, types.ClusterID(name))
	}
	return clusters, nil
}

// Records returns the expected leader of every configured cluster that has
// one
func (s *Store) Records() ([]types.LeaderRecord, error) {
	f, err := s.load()
	if err != nil {
		return nil, err
	}

	var records []types.LeaderRecord
	for _, name := range sectionNames(f) {
		sec := f.Section(name)
		if !sec.HasKey(LeaderKey) {
			continue
		}
		records = append(records, types.LeaderRecord{
			Cluster:  types.ClusterID(name),
			Hostname: strings.TrimSpace(sec.Key(LeaderKey).String()),
		})
	}
	return records, nil
}

func (s *Store) persistErr(cluster types.ClusterID, err error) error {
	return &types.PersistError{Cluster: cluster, Path: s.path, Err: err}
}

func section(f *ini.File, cluster types.ClusterID) (*ini.Section, error) {
	name := string(cluster)
	if name == "" || name == ini.DefaultSection {
		return nil, &types.UnknownClusterError{Cluster: cluster, Known: sectionNames(f)}
	}

	sec, err := f.GetSection(name)
	if err != nil {
		return nil, &types.UnknownClusterError{Cluster: cluster, Known: sectionNames(f)}
	}
	return sec, nil
}

func sectionNames(f *ini.File) []string {
	var names []string
	for _, name := range f.SectionStrings() {
		if name == ini.DefaultSection {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// setLeaderLine sets the leader key of every [name] block in data to host.
// When no block has the key it is added right under the first header.
// Continuation lines of a replaced value are dropped; all other lines are
// copied unchanged.
func setLeaderLine(data []byte, name, host string) ([]byte, error) {
	nl := []byte("\n")
	if bytes.Contains(data, []byte("\r\n")) {
		nl = []byte("\r\n")
	}

	var (
		out       bytes.Buffer
		inSection bool
		inValue   bool
		inLeader  bool
		replaced  bool
		header    = -1
		headerEOF bool
	)

	for _, line := range bytes.SplitAfter(data, []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		content := bytes.TrimSpace(line)

		switch {
		case len(content) == 0:
			inValue, inLeader = false, false

		case inValue && (line[0] == ' ' || line[0] == '\t' || line[0] == '\f'):
			if inLeader {
				continue
			}

		case content[0] == '#' || content[0] == ';':
			inValue, inLeader = false, false

		case content[0] == '[':
			inValue, inLeader = false, false
			end := bytes.LastIndexByte(content, ']')
			inSection = end > 0 && string(content[1:end]) == name
			if inSection && header < 0 {
				out.Write(line)
				header = out.Len()
				headerEOF = !bytes.HasSuffix(line, []byte("\n"))
				continue
			}

		default:
			inValue, inLeader = true, false
			if inSection && isLeaderKey(content) {
				out.Write(leaderLine(line, host))
				inLeader, replaced = true, true
				continue
			}
		}
		out.Write(line)
	}

	result := out.Bytes()
	if replaced {
		return result, nil
	}
	if header < 0 {
		return nil, fmt.Errorf("section [%s] not found", name)
	}

	added := LeaderKey + " = " + host
	var insert []byte
	if headerEOF {
		insert = append(append(insert, nl...), added...)
	} else {
		insert = append(append(insert, added...), nl...)
	}

	spliced := make([]byte, 0, len(result)+len(insert))
	spliced = append(spliced, result[:header]...)
	spliced = append(spliced, insert...)
	spliced = append(spliced, result[header:]...)
	return spliced, nil
}

func isLeaderKey(content []byte) bool {
	i := bytes.IndexAny(content, "=:")
	if i <= 0 {
		return false
	}
	return strings.EqualFold(string(bytes.TrimSpace(content[:i])), LeaderKey)
}

// leaderLine keeps the key, delimiter, spacing and line ending of line and
// swaps in host as the value
func leaderLine(line []byte, host string) []byte {
	i := bytes.IndexAny(line, "=:")
	rest := line[i+1:]

	body := bytes.TrimRightFunc(rest, unicode.IsSpace)
	ending := rest[len(body):]
	value := bytes.TrimLeft(body, " \t")
	sep := body[:len(body)-len(value)]
	if len(sep) == 0 && len(value) == 0 {
		sep = []byte(" ")
	}
	if j := bytes.IndexByte(ending, '\n'); j >= 0 {
		if j > 0 && ending[j-1] == '\r' {
			ending = []byte("\r\n")
		} else {
			ending = []byte("\n")
		}
	} else {
		ending = nil
	}

	b := make([]byte, 0, i+1+len(sep)+len(host)+len(ending))
	b = append(b, line[:i+1]...)
	b = append(b, sep...)
	b = append(b, host...)
	return append(b, ending...)
}

// verifyLeader parses data and checks that cluster now reads as host
func verifyLeader(data []byte, cluster types.ClusterID, host string) error {
	f, err := ini.LoadSources(loadOptions, data)
	if err != nil {
		return fmt.Errorf("updated config store does not parse: %w", err)
	}
	got := strings.TrimSpace(f.Section(string(cluster)).Key(LeaderKey).String())
	if got != host {
		return fmt.Errorf("updated config store reads leader %q, want %q", got, host)
	}
	return nil
}
