package channelmap

import (
	"fmt"
	"strings"
)

// ConfigurationError reports that no candidate directory held the channel
// reference data.
type ConfigurationError struct {
	Candidates []string
}

func (e *ConfigurationError) Error() string {
	if len(e.Candidates) == 0 {
		return "data directory not found: no candidate directories were given"
	}

	return fmt.Sprintf("data directory not found: none of these contained both %s and %s: %s",
		MappingFilename, KnownChannelsFilename, strings.Join(e.Candidates, ", "))
}
