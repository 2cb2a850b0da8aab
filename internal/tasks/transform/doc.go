// Package transform hosts the generate-script task. The whole extracted text
// is handed, unmodified, to the generation adapter together with the style
// directives, and the model's answer becomes `generated_script`.
//
// Text longer than the configured rune limit is rejected with
// task.ErrContentTooLarge rather than truncated.
package transform
