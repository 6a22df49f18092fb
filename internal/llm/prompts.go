package llm

import "fmt"

// DefaultAnalyzePrompt asks for a structured description of an endoscopic frame.
const DefaultAnalyzePrompt = "Please analyze this image and provide response in EXACTLY the following format:\n\n" +
	"If this is a valid endoscopic image, output MUST be in this format:\n" +
	"Tissue: [describe visible tissue and anatomical structures]\n" +
	"Tools: [list all visible medical instruments in detail - e.g. biopsy forceps, snare, injection needle, " +
	"clip applicator, etc. Write 'none' if no tools visible]\n" +
	"Abnormalities: [list any abnormalities from: inflammation/lesions/polyps/growths/color changes/bleeding, " +
	"or 'none' if none visible]\n" +
	"ImageQuality: [describe any quality issues using following format - \n" +
	"Blur: none/partial/severe (specify if due to movement)\n" +
	"Lighting: normal/dark/overexposed\n" +
	"Visibility: clear/partially obscured/heavily obscured (specify if due to glare/bubbles/debris)\n" +
	"Overall: good/fair/poor]\n\n" +
	"If this is NOT a valid endoscopic image but contains text/slides about surgical procedures or endoscopic knowledge:\n" +
	"Output should begin with 'PureText:' followed by the main educational content about surgical techniques, " +
	"anatomical descriptions, or procedural steps\n\n" +
	"If this is neither an endoscopic image nor text/slides:\n" +
	"Output EXACTLY this single line: 'No valid endoscopic image detected'\n\n" +
	"DO NOT include any other text, explanations, or descriptions beyond these formats."

// DefaultDescribePrompt is used by describe when no prompt is given.
const DefaultDescribePrompt = "Please describe what you see in this image in detail."

// ReferenceImageIntro precedes the reference image in analysis requests.
const ReferenceImageIntro = "Here is a reference image:"

// ImproveSystemPrompt is the system instruction for transcript improvement.
const ImproveSystemPrompt = "You are a helpful assistant that improves text readability while maintaining the original meaning."

const improvePromptTemplate = `Please improve the readability of the following Chinese text.
This is an audio transcription of an endoscopy procedure with simultaneous doctor commentary.
The text likely contains typos, medical terminology, and formatting issues that need to be fixed.

Key requirements:
1. Fix any spelling mistakes and typos in Chinese characters, especially medical terms
2. Add proper punctuation (using Chinese punctuation marks)
3. Improve formatting for better readability while preserving the procedural flow
4. Maintain the original medical meaning and technical accuracy
5. Keep any timestamps, measurements, and numbers unchanged
6. Preserve speaker transitions and commentary structure

Text to improve:
%s
`

// ImprovePrompt wraps one transcript chunk in the improvement instructions.
func ImprovePrompt(text string) string {
	return fmt.Sprintf(improvePromptTemplate, text)
}

// AnalyzeRequest builds the request for one frame. When ref is non-nil the
// reference image is sent first, introduced by ReferenceImageIntro.
func AnalyzeRequest(prompt string, ref *Image, img Image, maxTokens int) Request {
	parts := make([]Part, 0, 4)
	if ref != nil {
		parts = append(parts, TextPart(ReferenceImageIntro), ImagePart(*ref))
	}
	parts = append(parts, TextPart(prompt), ImagePart(img))
	return Request{Parts: parts, MaxTokens: maxTokens}
}
