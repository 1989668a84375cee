package platform

import (
	"context"
	"encoding/base64"
	"fmt"
	"os/exec"
	"unicode/utf16"
)

// ExtractArchive unpacks an artifact archive into destDir using an
// OS-provided facility rather than a Go archive library, for parity with
// "tar on Unix, a PowerShell invocation on Windows". destDir must already
// exist.
func ExtractArchive(ctx context.Context, archivePath, destDir string) error {
	osName, _ := Detect()
	if osName == OSWindows {
		return extractZipWindows(ctx, archivePath, destDir)
	}
	return extractTarUnix(ctx, archivePath, destDir)
}

func extractTarUnix(ctx context.Context, archivePath, destDir string) error {
	cmd := exec.CommandContext(ctx, "tar", "-xzf", archivePath, "-C", destDir)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("tar extract failed: %w: %s", err, string(out))
	}
	return nil
}

// extractZipWindows shells out to PowerShell's Expand-Archive, base64-
// encoding the command line as UTF-16LE to avoid special-character
// corruption — PowerShell's -EncodedCommand flag expects exactly that
// encoding, which sidesteps every quoting pitfall a path with spaces or
// special characters would otherwise hit.
func extractZipWindows(ctx context.Context, archivePath, destDir string) error {
	script := fmt.Sprintf(
		"Expand-Archive -LiteralPath %s -DestinationPath %s -Force",
		psQuote(archivePath), psQuote(destDir),
	)
	encoded := encodePowerShellCommand(script)
	cmd := exec.CommandContext(ctx, "powershell", "-NoProfile", "-NonInteractive", "-EncodedCommand", encoded)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("powershell extract failed: %w: %s", err, string(out))
	}
	return nil
}

// CreateArchive packs srcDir into archivePath using the same OS-provided
// tooling ExtractArchive unpacks with, so a snapshot taken on one platform
// stays restorable by the matching extractor on that platform.
func CreateArchive(ctx context.Context, srcDir, archivePath string) error {
	osName, _ := Detect()
	if osName == OSWindows {
		return createZipWindows(ctx, srcDir, archivePath)
	}
	return createTarUnix(ctx, srcDir, archivePath)
}

func createTarUnix(ctx context.Context, srcDir, archivePath string) error {
	cmd := exec.CommandContext(ctx, "tar", "-czf", archivePath, "-C", srcDir, ".")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("tar create failed: %w: %s", err, string(out))
	}
	return nil
}

func createZipWindows(ctx context.Context, srcDir, archivePath string) error {
	script := fmt.Sprintf(
		"Compress-Archive -Path %s\\* -DestinationPath %s -Force",
		psQuote(srcDir), psQuote(archivePath),
	)
	encoded := encodePowerShellCommand(script)
	cmd := exec.CommandContext(ctx, "powershell", "-NoProfile", "-NonInteractive", "-EncodedCommand", encoded)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("powershell compress failed: %w: %s", err, string(out))
	}
	return nil
}

func psQuote(path string) string {
	return "'" + path + "'"
}

func encodePowerShellCommand(script string) string {
	utf16Chars := utf16.Encode([]rune(script))
	buf := make([]byte, len(utf16Chars)*2)
	for i, c := range utf16Chars {
		buf[i*2] = byte(c)
		buf[i*2+1] = byte(c >> 8)
	}
	return base64.StdEncoding.EncodeToString(buf)
}
