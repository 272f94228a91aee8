// Package graphics is the graphics collaborator of the bridge: a small
// retained widget tree rooted at a screen, rendered to the terminal with
// lipgloss.
package graphics
