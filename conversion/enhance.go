package conversion

import "bytes"

var headTag = []byte("<head>")

// enhancedHead carries the meta pair and baseline stylesheet the office
// sidecar injects into its own output. Raw converter output gets the same
// treatment so both engines render alike.
var enhancedHead = []byte(`<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<style>
    body { font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif; line-height: 1.6; margin: 0; padding: 20px; }
    .resume-container { max-width: 800px; margin: 0 auto; background: white; }
    table { width: 100%; border-collapse: collapse; margin: 10px 0; }
    td, th { padding: 8px; text-align: left; vertical-align: top; }
    h1, h2, h3 { color: #333; margin-top: 20px; margin-bottom: 10px; }
    p { margin: 8px 0; }
    ul, ol { margin: 8px 0; padding-left: 20px; }
    .page-break { page-break-before: always; }
</style>`)

// enhanceHTML injects the baseline styling after the document head. Content
// without a head element passes through unchanged.
func enhanceHTML(html []byte) []byte {
	if !bytes.Contains(html, headTag) {
		return html
	}
	return bytes.Replace(html, headTag, enhancedHead, 1)
}
