package broadcast

import (
	"fmt"

	"github.com/gluk-w/webtail/internal/message"
)

// ConfigureDefaultPods gives a MultiPod identity asking for the default pod
// name the lowest "Pod N" not used by the same application in registered.
// Other identities are returned unchanged.
func ConfigureDefaultPods(id message.Identity, registered []message.Identity) message.Identity {
	if !id.WantsDefaultPod() {
		return id
	}

	used := make(map[string]bool)
	for _, other := range registered {
		if other.Kind == message.MultiPod && other.Application == id.Application {
			used[other.Pod] = true
		}
	}
	for n := 0; ; n++ {
		name := fmt.Sprintf("Pod %d", n)
		if !used[name] {
			return message.NewMultiPod(id.Application, name)
		}
	}
}
