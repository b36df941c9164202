// Package browser opens reward links in the user's default browser.
package browser

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// DefaultIPFSGateway resolves ipfs:// content for NFT images and QR assets.
const DefaultIPFSGateway = "https://ipfs.io/ipfs/"

// Open opens the specified URL in the user's default browser.
func Open(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "linux":
		return exec.Command("xdg-open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		return fmt.Errorf("unsupported OS: %s", runtime.GOOS)
	}
}

// GatewayURL turns an IPFS CID or ipfs:// URI into a gateway URL. Plain
// http(s) URLs pass through unchanged. gateway may be empty for the default.
func GatewayURL(gateway, ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	if gateway == "" {
		gateway = DefaultIPFSGateway
	}
	if !strings.HasSuffix(gateway, "/") {
		gateway += "/"
	}
	return gateway + strings.TrimPrefix(ref, "ipfs://")
}
