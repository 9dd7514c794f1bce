package imagegen

import (
	"fmt"
	"strings"
)

// BuildInstruction renders a brief into the single prompt string sent to the
// editing endpoint.
func BuildInstruction(focus Focus, b Brief) string {
	parts := []string{}
	subject := strings.TrimSpace(b.Subject)
	if subject == "" {
		subject = "the jewelry piece"
	}
	switch focus {
	case FocusGemstone:
		stone := strings.TrimSpace(b.Gemstone)
		if stone == "" {
			stone = "gemstones"
		}
		parts = append(parts, fmt.Sprintf("Enhance the %s on %s: raise clarity, brilliance and fire without changing cut or size.", stone, subject))
	case FocusMetalColor:
		parts = append(parts, fmt.Sprintf("Recolor the metal of %s to %s, keeping reflections and engraving detail.", subject, strings.TrimSpace(b.Metal)))
	case FocusMetalPolish:
		finish := strings.TrimSpace(b.Finish)
		if finish == "" {
			finish = "mirror"
		}
		parts = append(parts, fmt.Sprintf("Polish the metal surfaces of %s to a %s finish and remove scratches and dust.", subject, finish))
	case FocusNaturalLight:
		light := strings.TrimSpace(b.Lighting)
		if light == "" {
			light = "soft daylight"
		}
		parts = append(parts, fmt.Sprintf("Relight %s with %s, natural shadows and accurate metal tones.", subject, light))
	default:
		if subject != "the jewelry piece" {
			parts = append(parts, fmt.Sprintf("Edit the product photo so it presents %q.", subject))
		}
	}
	if style := strings.TrimSpace(b.Style); style != "" {
		parts = append(parts, "Visual style: "+style+".")
	}
	if background := strings.TrimSpace(b.Background); background != "" {
		parts = append(parts, "Background: "+background+".")
	}
	if instructions := strings.TrimSpace(b.Instructions); instructions != "" {
		parts = append(parts, "Additional instructions: "+instructions+".")
	}
	parts = append(parts, "Keep the original shape and proportions, no blur, no artifacts.")
	if aspect := strings.TrimSpace(b.AspectRatio); aspect != "" {
		parts = append(parts, "Compose for a "+aspect+" frame.")
	}
	for idx, ref := range b.References {
		if ref = strings.TrimSpace(ref); ref != "" {
			parts = append(parts, fmt.Sprintf("Use reference image %d: %s", idx+1, ref))
		}
	}
	return strings.Join(parts, " ")
}
