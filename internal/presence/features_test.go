package presence

import (
	"testing"

	"github.com/otalk/mod-muc-focus/internal/xmppns"
	"github.com/stretchr/testify/assert"
)

func TestFeaturesExcludeColibri(t *testing.T) {
	assert.False(t, Supports(xmppns.Colibri))
}

func TestFeaturesIncludeCoreNamespaces(t *testing.T) {
	for _, ns := range []string{xmppns.Jingle, xmppns.JingleICEUDP, xmppns.JingleRTP, xmppns.JingleDTLS, xmppns.MMUC} {
		assert.True(t, Supports(ns), "expected %s to be advertised", ns)
	}
}

func TestInfoCarriesIdentityAndFeatures(t *testing.T) {
	info := Info()
	assert.Len(t, info.Identity, 1)
	assert.Equal(t, len(Features), len(info.Features))
}
