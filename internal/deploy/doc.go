// Package deploy watches a directory and hands the files placed in it to
// the dispatcher.
//
// Files present when the lifecycle starts are installed in name order.
// Afterwards fsnotify events are debounced per file: a create installs
// the file, a write reinstalls it, and a remove or rename uninstalls it.
// Hidden files and common editor temporaries are ignored.
package deploy
