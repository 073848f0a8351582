package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup by id/name finds no row.
var ErrNotFound = errors.New("resource not found")

// ErrPortExhausted is returned when a port range has no free port left.
var ErrPortExhausted = errors.New("port range exhausted")

// ErrNameTaken is returned when a unique name constraint would be violated.
var ErrNameTaken = errors.New("name already in use")

// Slot names one of the two blue/green runtime placeholders.
type Slot string

const (
	SlotBlue  Slot = "blue"
	SlotGreen Slot = "green"
)

// Opposite returns the other slot.
func (s Slot) Opposite() Slot {
	if s == SlotBlue {
		return SlotGreen
	}
	return SlotBlue
}

// CacheType names a known build-cache root.
type CacheType string

const (
	CacheGradle CacheType = "gradle"
	CacheMaven  CacheType = "maven"
	CacheNPM    CacheType = "npm"
	CachePip    CacheType = "pip"
	CacheCargo  CacheType = "cargo"
	CacheGo     CacheType = "go"
	CacheNone   CacheType = "none"
)

// CacheMountPath returns the in-container mount point for a cache type.
// Unknown types silently mount to /cache.
func CacheMountPath(c CacheType) string {
	switch c {
	case CacheGradle:
		return "/root/.gradle"
	case CacheMaven:
		return "/root/.m2"
	case CacheNPM:
		return "/root/.npm"
	case CachePip:
		return "/root/.cache/pip"
	case CacheCargo:
		return "/root/.cargo"
	case CacheGo:
		return "/root/.cache/go-build"
	case CacheNone:
		return ""
	default:
		return "/cache"
	}
}

// Project is a declarative CI/CD project: source reference, build
// recipe, runtime recipe, and blue/green slot allocation.
type Project struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Repo       string `json:"repo"`
	Branch     string `json:"branch"`
	PathFilter string `json:"path_filter"`

	BuildImage       string    `json:"build_image"`
	BuildCommand     string    `json:"build_command"`
	CacheType        CacheType `json:"cache_type"`
	WorkingDirectory string    `json:"working_directory,omitempty"`

	RuntimeImage   string `json:"runtime_image"`
	RuntimeCommand string `json:"runtime_command"`
	RuntimePort    int    `json:"runtime_port"`
	HealthCheckURL string `json:"health_check_url,omitempty"`

	BluePort  int `json:"blue_port"`
	GreenPort int `json:"green_port"`

	ActiveSlot       Slot    `json:"active_slot"`
	BlueContainerID  *string `json:"blue_container_id,omitempty"`
	GreenContainerID *string `json:"green_container_id,omitempty"`

	NetworkName string    `json:"network_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// ContainerIDForSlot returns the container id stored for the given slot.
func (p *Project) ContainerIDForSlot(s Slot) *string {
	if s == SlotBlue {
		return p.BlueContainerID
	}
	return p.GreenContainerID
}

// PortForSlot returns the host port reserved for the given slot.
func (p *Project) PortForSlot(s Slot) int {
	if s == SlotBlue {
		return p.BluePort
	}
	return p.GreenPort
}

// ContainerName returns the runtime container name for a project slot.
func (p *Project) ContainerName(s Slot) string {
	return ProjectSlotContainerName(p.ID, s)
}

// ProjectSlotContainerName builds the deterministic container name for a
// project's slot.
func ProjectSlotContainerName(projectID int64, s Slot) string {
	return "project-" + itoa(projectID) + "-" + string(s)
}

// StandaloneContainerName builds the deterministic container name for a
// standalone container.
func StandaloneContainerName(name string) string {
	return "container-" + name
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// BuildStatus is a Build's lifecycle state: Queued -> Building -> {Success, Failed}.
type BuildStatus string

const (
	BuildQueued   BuildStatus = "queued"
	BuildBuilding BuildStatus = "building"
	BuildSuccess  BuildStatus = "success"
	BuildFailed   BuildStatus = "failed"

	// buildDeployingLegacy is accepted on read but normalized to BuildSuccess.
	buildDeployingLegacy BuildStatus = "deploying"
)

// NormalizeBuildStatus maps the legacy "deploying" status to Success.
func NormalizeBuildStatus(s BuildStatus) BuildStatus {
	if s == buildDeployingLegacy {
		return BuildSuccess
	}
	return s
}

// Build is one execution of a project's build->deploy pipeline.
type Build struct {
	ID            int64  `json:"id"`
	ProjectID     int64  `json:"project_id"`
	BuildNumber   int64  `json:"build_number"`
	CommitHash    string `json:"commit_hash"`
	CommitMessage string `json:"commit_message"`
	Author        string `json:"author"`

	StartedAt     time.Time `json:"started_at"`
	LogPath       string    `json:"log_path"`
	DeployLogPath string    `json:"deploy_log_path"`

	Status       BuildStatus `json:"status"`
	OutputPath   *string     `json:"output_path,omitempty"`
	DeployedSlot *Slot       `json:"deployed_slot,omitempty"`
	FinishedAt   *time.Time  `json:"finished_at,omitempty"`
}

// ContainerStatus is a standalone container's lifecycle state.
type ContainerStatus string

const (
	ContainerStopped  ContainerStatus = "stopped"
	ContainerPulling  ContainerStatus = "pulling"
	ContainerStarting ContainerStatus = "starting"
	ContainerRunning  ContainerStatus = "running"
)

// ProtocolType names how the reverse proxy should treat a standalone container.
type ProtocolType string

const (
	ProtocolTCP  ProtocolType = "tcp"
	ProtocolHTTP ProtocolType = "http"
)

// Container is a standalone (non-project) managed container.
type Container struct {
	ID            int64        `json:"id"`
	Name          string       `json:"name"`
	Image         string       `json:"image"`
	HostPort      int          `json:"host_port"`
	ContainerPort int          `json:"container_port"`
	EnvVars       string       `json:"env_vars"` // JSON object
	Command       string       `json:"command,omitempty"`
	PersistData   bool         `json:"persist_data"`
	ProtocolType  ProtocolType `json:"protocol_type"`
	Status        ContainerStatus `json:"status"`
	ContainerID   *string      `json:"container_id,omitempty"` // runtime-assigned id
	CreatedAt     time.Time    `json:"created_at"`
}

// RuntimeContainerName returns the runtime container name for this
// standalone container.
func (c *Container) RuntimeContainerName() string {
	return StandaloneContainerName(c.Name)
}

// PortStatus is the state of a port_allocations row.
type PortStatus string

const (
	PortAllocated    PortStatus = "allocated"
	PortUsedBySystem PortStatus = "used_by_system"
)

// PortAllocation reserves a host TCP port for a project slot or
// standalone container, or records that it's occupied externally.
type PortAllocation struct {
	Port          int        `json:"port"`
	Status        PortStatus `json:"status"`
	OwnerType     string     `json:"owner_type"` // "project" | "container" | "external"
	OwnerID       int64      `json:"owner_id"`
	LastCheckedAt *time.Time `json:"last_checked_at,omitempty"`
}

// Session is an opaque-token-keyed login session for an external
// collaborator; only Get/DeleteExpired are required on the hot path.
type Session struct {
	Token     string    `json:"-"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}
