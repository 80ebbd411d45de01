package message

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ErrInvalidIdentity is returned when an identity payload cannot be parsed.
var ErrInvalidIdentity = errors.New("invalid application identity")

// DefaultPodName is the reserved pod name asking the server to assign the
// next free "Pod N" name for the application.
const DefaultPodName = "default"

// IdentityKind distinguishes single pod applications from pods of a
// replicated application.
type IdentityKind uint8

const (
	SinglePod IdentityKind = iota
	MultiPod
)

func (k IdentityKind) String() string {
	switch k {
	case SinglePod:
		return "SinglePod"
	case MultiPod:
		return "MultiPod"
	default:
		return fmt.Sprintf("IdentityKind(%d)", uint8(k))
	}
}

// Identity names a log stream. It is comparable and used as a map key.
type Identity struct {
	Kind        IdentityKind
	Application string
	Pod         string
}

// NewSinglePod returns the identity of an application with one instance.
func NewSinglePod(name string) Identity {
	return Identity{Kind: SinglePod, Application: name}
}

// NewMultiPod returns the identity of one pod of a replicated application.
func NewMultiPod(application, pod string) Identity {
	return Identity{Kind: MultiPod, Application: application, Pod: pod}
}

// Name returns the application name shared by all pods.
func (id Identity) Name() string {
	return id.Application
}

// IsZero reports whether id is the zero identity.
func (id Identity) IsZero() bool {
	return id == Identity{}
}

// WantsDefaultPod reports whether the server should assign a pod name.
func (id Identity) WantsDefaultPod() bool {
	return id.Kind == MultiPod && id.Pod == DefaultPodName
}

// Compare orders identities: single pods first, then by application and pod.
func (id Identity) Compare(other Identity) int {
	if c := cmp.Compare(id.Kind, other.Kind); c != 0 {
		return c
	}
	if c := cmp.Compare(id.Application, other.Application); c != 0 {
		return c
	}
	return cmp.Compare(id.Pod, other.Pod)
}

// String returns the JSON form, the same text carried by the Application header.
func (id Identity) String() string {
	b, err := json.Marshal(id)
	if err != nil {
		return fmt.Sprintf("%s(%s/%s)", id.Kind, id.Application, id.Pod)
	}
	return string(b)
}

type multiPodJSON struct {
	Application string `json:"application"`
	PodName     string `json:"pod_name"`
}

func (id Identity) MarshalJSON() ([]byte, error) {
	switch id.Kind {
	case SinglePod:
		return json.Marshal(map[string]string{"SinglePod": id.Application})
	case MultiPod:
		return json.Marshal(map[string]multiPodJSON{
			"MultiPod": {Application: id.Application, PodName: id.Pod},
		})
	default:
		return nil, fmt.Errorf("%w: unknown kind %d", ErrInvalidIdentity, id.Kind)
	}
}

func (id *Identity) UnmarshalJSON(b []byte) error {
	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(b, &tagged); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	if len(tagged) != 1 {
		return fmt.Errorf("%w: expected exactly one variant, got %d", ErrInvalidIdentity, len(tagged))
	}

	for tag, raw := range tagged {
		switch tag {
		case "SinglePod":
			var name string
			if err := json.Unmarshal(raw, &name); err != nil {
				return fmt.Errorf("%w: SinglePod: %v", ErrInvalidIdentity, err)
			}
			if name == "" {
				return fmt.Errorf("%w: empty application name", ErrInvalidIdentity)
			}
			*id = NewSinglePod(name)
		case "MultiPod":
			var mp multiPodJSON
			if err := json.Unmarshal(raw, &mp); err != nil {
				return fmt.Errorf("%w: MultiPod: %v", ErrInvalidIdentity, err)
			}
			if mp.Application == "" || mp.PodName == "" {
				return fmt.Errorf("%w: MultiPod needs application and pod_name", ErrInvalidIdentity)
			}
			*id = NewMultiPod(mp.Application, mp.PodName)
		default:
			return fmt.Errorf("%w: unknown variant %q", ErrInvalidIdentity, tag)
		}
	}
	return nil
}

// UnmarshalYAML accepts the same externally tagged shape as the JSON form,
// so client configuration files may be written in either syntax.
func (id *Identity) UnmarshalYAML(value *yaml.Node) error {
	var raw map[string]any
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	return id.UnmarshalJSON(b)
}

// ParseIdentity parses the JSON form of an identity.
func ParseIdentity(s string) (Identity, error) {
	var id Identity
	if err := json.Unmarshal([]byte(s), &id); err != nil {
		if errors.Is(err, ErrInvalidIdentity) {
			return Identity{}, err
		}
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	return id, nil
}
