package auth

import (
	"fmt"
	"strings"
)

// ShowAPIKeyGuide displays step-by-step instructions for creating an
// Immich API key
func ShowAPIKeyGuide() {
	fmt.Println(strings.Repeat("=", 72))
	fmt.Println("🔑 IMMICH API KEY GUIDE")
	fmt.Println(strings.Repeat("=", 72))
	fmt.Println()

	fmt.Println("This tool needs an API key to talk to your Immich server.")
	fmt.Println()

	fmt.Println("STEP 1: Open your Immich web UI and sign in")
	fmt.Println("   - e.g. http://your-server:2283")
	fmt.Println()

	fmt.Println("STEP 2: Create a key")
	fmt.Println("   - Click your avatar → Account Settings → API Keys")
	fmt.Println("   - Click 'New API Key', give it a name like 'immichporter'")
	fmt.Println("   - Copy the key now; it is shown only once")
	fmt.Println()

	fmt.Println("STEP 3: Store it")
	fmt.Println("   - Run 'immichporter auth login' and paste the key, or")
	fmt.Println("   - Export IMMICH_ENDPOINT and IMMICH_API_KEY")
	fmt.Println()

	fmt.Println("⚠️  The key grants full access to your Immich library.")
	fmt.Println("   Never commit it or share it; this tool stores it encrypted.")
	fmt.Println()
	fmt.Println(strings.Repeat("=", 72))
	fmt.Println()
}

// ShowQuickGuide shows a condensed version for experienced users
func ShowQuickGuide() {
	fmt.Println("\n🔑 Quick guide: Immich web UI → Account Settings → API Keys → New API Key")
	fmt.Println("   Then: immichporter auth login (or export IMMICH_ENDPOINT / IMMICH_API_KEY)")
}
