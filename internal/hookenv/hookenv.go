package hookenv

import (
	"os"
	"runtime"
	"strings"
)

// Kind classifies the execution environment a hook process is running in.
// Derived fresh per invocation from filesystem markers and environment
// variables; never persisted.
type Kind string

const (
	KindUnknown      Kind = "unknown"
	KindContainer    Kind = "container"
	KindKubernetes   Kind = "kubernetes"
	KindWSL          Kind = "wsl"
	KindDevcontainer Kind = "devcontainer"
	KindWindows      Kind = "windows"
	KindUnix         Kind = "unix"
)

// DockerInternalHost is the placeholder host that only resolves inside
// container networking. Configs ship with it so the same file works inside
// and outside containers; ResolveServerURL rewrites it when needed.
const DockerInternalHost = "host.docker.internal"

const defaultServerPort = "4000"

// ObservabilityServerURLEnv overrides the configured server URL when set.
const ObservabilityServerURLEnv = "OBSERVABILITY_SERVER_URL"

// InContainer reports whether the kind resolves container-internal hostnames
// (the docker placeholder host works as-is).
func (k Kind) InContainer() bool {
	switch k {
	case KindContainer, KindKubernetes, KindDevcontainer:
		return true
	default:
		return false
	}
}

func (k Kind) String() string {
	if k == "" {
		return string(KindUnknown)
	}
	return string(k)
}

// probes abstracts the host inspection points so detection is testable
// without a real container or WSL host.
type probes struct {
	getenv     func(string) string
	pathExists func(string) bool
	readFile   func(string) ([]byte, error)
	goos       string
}

func defaultProbes() probes {
	return probes{
		getenv: os.Getenv,
		pathExists: func(path string) bool {
			_, err := os.Stat(path)
			return err == nil
		},
		readFile: os.ReadFile,
		goos:     runtime.GOOS,
	}
}

// Resolve classifies the current execution environment. Pure inspection:
// no side effects, no network I/O. Rules are checked most-specific first
// so container and orchestration signals are not masked by the broader
// WSL/Unix classifications.
func Resolve() Kind {
	return resolve(defaultProbes())
}

func resolve(p probes) Kind {
	if p.pathExists("/.dockerenv") || p.pathExists("/run/.containerenv") {
		return KindContainer
	}
	if p.getenv("KUBERNETES_SERVICE_HOST") != "" {
		return KindKubernetes
	}
	if version, err := p.readFile("/proc/version"); err == nil &&
		strings.Contains(strings.ToLower(string(version)), "microsoft") {
		// A dev container nested in WSL mounts its source under /workspace(s).
		if p.pathExists("/workspace") || p.pathExists("/workspaces") {
			return KindDevcontainer
		}
		return KindWSL
	}
	if p.goos == "windows" {
		return KindWindows
	}
	return KindUnix
}

// ResolveServerURL applies the asymmetric placeholder rewrite. A URL without
// the docker placeholder is explicit operator intent and returned unchanged.
// Inside container-family environments the placeholder resolves natively and
// is kept; everywhere else it is rewritten to loopback, preserving scheme,
// port, and path.
func ResolveServerURL(configured string, kind Kind) string {
	if !strings.Contains(configured, DockerInternalHost) {
		return configured
	}
	if kind.InContainer() {
		return configured
	}
	return strings.ReplaceAll(configured, DockerInternalHost, "localhost")
}

// CandidateBaseURLs returns a ranked list of server base URLs to probe for
// auxiliary endpoints (server-side TTS). The OBSERVABILITY_SERVER_URL
// override always ranks first; after that the ordering favors the host most
// likely reachable from the detected environment.
func CandidateBaseURLs(kind Kind) []string {
	return candidateBaseURLs(defaultProbes(), kind)
}

func candidateBaseURLs(p probes, kind Kind) []string {
	var bases []string
	add := func(base string) {
		base = strings.TrimSuffix(strings.TrimRight(base, "/"), "/events")
		if base == "" {
			return
		}
		for _, b := range bases {
			if b == base {
				return
			}
		}
		bases = append(bases, base)
	}

	if env := strings.TrimSpace(p.getenv(ObservabilityServerURLEnv)); env != "" {
		add(env)
	}

	loopback := "http://localhost:" + defaultServerPort
	dockerHost := "http://" + DockerInternalHost + ":" + defaultServerPort

	switch {
	case kind.InContainer():
		add(dockerHost)
		add(loopback)
	case kind == KindWSL:
		if ns := wslNameserver(p); ns != "" {
			add("http://" + ns + ":" + defaultServerPort)
		}
		add(loopback)
		add(dockerHost)
	default:
		add(loopback)
		add(dockerHost)
	}
	return bases
}

// wslNameserver extracts the Windows-host IP from /etc/resolv.conf. Under
// WSL2 the first nameserver entry is the host side of the virtual network.
func wslNameserver(p probes) string {
	data, err := p.readFile("/etc/resolv.conf")
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "nameserver") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) >= 2 {
			return fields[1]
		}
	}
	return ""
}
