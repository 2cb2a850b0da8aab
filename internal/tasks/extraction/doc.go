// Package extraction hosts the extract-text task. The selected video's locator
// is streamed through the extraction adapter and every chunk is concatenated
// in arrival order. The text is only returned once the stream has ended
// cleanly, so a broken stream never leaves `extracted_text` behind.
package extraction
