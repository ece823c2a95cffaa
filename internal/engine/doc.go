/*
Package engine defines the render engine contract the session core drives.

An Engine hands out isolated browsing Contexts, one per session. A Context
creates Targets (tabs) and pushes Events about them through the OnEvent
callback supplied at creation. Callbacks arrive on engine goroutines in no
particular order relative to command completions; the session normalizes
them into its own queue.

Every Target call may fail. Classify sorts failures into TargetGone (the tab
is closed or closing) and Transient (anything else) so that call sites state
which failures they swallow.

Implementations:

  - engine/rod: Chrome DevTools Protocol through go-rod
  - engine/enginetest: in-memory fake for tests
*/
package engine
