package telegram

import (
	"fmt"
	"sort"
	"strings"

	"github.com/iconidentify/igrabba/internal/domain"
)

const startText = `🤖 Instagram Downloader Bot

Welcome! I can download content from Instagram posts.

Supported Content:
• Videos from posts and reels ✅
• Photos from posts (including carousel) ✅
• Stories (public only) ⚠️

Commands:
/start - Show this message
/help - Show help information
/status - Check bot status

How to use:
Send me an Instagram post URL and I'll download the content for you!`

const helpText = `📖 Help Information

This bot downloads content from Instagram posts.

Supported URLs:
• Instagram posts: https://instagram.com/p/...
• Instagram reels: https://instagram.com/reel/...
• Instagram TV: https://instagram.com/tv/...
• Instagram stories: https://instagram.com/stories/...
• User profiles: https://instagram.com/username

Features:
✅ Video downloads (reels, posts)
✅ Photo downloads (posts, carousel)
⚠️ Story downloads (public only)
✅ Multiple file support
✅ Direct photo extraction
✅ yt-dlp fallback

How to use:
1. Find an Instagram post you want to download
2. Copy the URL
3. Send it to this bot
4. Wait for the content to be downloaded and sent`

const usageText = `💬 Message Received

I can help you download Instagram content!

Send me:
• Instagram post URL
• Instagram reel URL
• Instagram story URL
• /help for instructions
• /status to check bot status`

const busyText = "⏳ I'm handling a lot of requests right now. Please try again in a minute."

// StatusReport is what /status renders.
type StatusReport struct {
	ToolAvailable bool
	ToolVersion   string
	ArchiveBucket string
	// Stats is nil when history is unavailable.
	Stats *domain.HistoryStats
}

// StatusText renders the /status reply.
func StatusText(r StatusReport) string {
	var b strings.Builder
	b.WriteString("📊 Bot Status\n\n")
	b.WriteString("✅ Bot is running\n")
	b.WriteString("✅ Instagram downloader enabled\n")

	switch {
	case r.ToolAvailable && r.ToolVersion != "":
		fmt.Fprintf(&b, "✅ yt-dlp installed (%s)\n", r.ToolVersion)
	case r.ToolAvailable:
		b.WriteString("✅ yt-dlp installed\n")
	default:
		b.WriteString("❌ yt-dlp not installed\n")
	}

	if r.ArchiveBucket != "" {
		fmt.Fprintf(&b, "✅ AWS S3 archive enabled (%s)\n", r.ArchiveBucket)
	} else {
		b.WriteString("❌ AWS S3 not configured (using local storage)\n")
	}

	if s := r.Stats; s != nil {
		fmt.Fprintf(&b, "\n📈 Requests: %d (%d succeeded, %d failed)\n", s.Requests, s.Succeeded, s.Failed)
		fmt.Fprintf(&b, "📦 Files delivered: %d of %d\n", s.FilesDelivered, s.FilesAttempted)
		if len(s.ByStrategy) > 0 {
			names := make([]string, 0, len(s.ByStrategy))
			for name := range s.ByStrategy {
				names = append(names, name)
			}
			sort.Strings(names)
			parts := make([]string, len(names))
			for i, name := range names {
				parts[i] = fmt.Sprintf("%s %d", name, s.ByStrategy[name])
			}
			fmt.Fprintf(&b, "🔎 Found by: %s\n", strings.Join(parts, ", "))
		}
	}

	b.WriteString("\nReady to download Instagram content!")
	return b.String()
}

// DetectedText acknowledges a recognized URL before work starts.
func DetectedText(kind domain.ContentKind) string {
	return fmt.Sprintf("🔗 Instagram %s Detected\n\nProcessing your Instagram %s...\n⏳ This may take a few moments.",
		kind.Label(), kind.String())
}

// LocatedText announces how many files were found.
func LocatedText(count int) string {
	return fmt.Sprintf("✅ Download Successful!\n\nFound %d file(s).\nSending content to you...", count)
}

// SummaryText reports the outcome of one request.
func SummaryText(o domain.DeliveryOutcome) string {
	switch {
	case o.Failed():
		return fmt.Sprintf("❌ Download Failed\n\nError: %s\n\nPlease check:\n"+
			"• The URL is correct\n"+
			"• The post is public\n"+
			"• The post contains media\n"+
			"• Try a different post", o.FailureReason)
	case o.Delivered > 0:
		return fmt.Sprintf("🎉 Content sent successfully!\n\nSent %d out of %d files.\nEnjoy your content! 🎬",
			o.Delivered, o.Attempted)
	default:
		return "❌ Failed to send any files\n\nAll files were too large or had errors."
	}
}
