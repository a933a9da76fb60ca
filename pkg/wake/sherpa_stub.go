//go:build !kws

package wake

// NewSherpaSpotter is unavailable without the kws build tag; the service
// then runs voice activity detection only.
func NewSherpaSpotter(SherpaConfig) (KeywordSpotter, error) {
	return nil, ErrNotBuilt
}
