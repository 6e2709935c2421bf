package logging

// DebugEnable is a string passed in by the linker to control the build's
// inclusion of Debuggable sections, ie: tracing of every external command's
// full output.
var DebugEnable string

// Debuggable means that the build should include any debugging logic in it.
var Debuggable = DebugEnable != ""
