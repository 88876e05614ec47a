// Package textutil holds the string normalization shared by the rule
// table, the publisher cache, and the symlink tree.
//
// FoldKey produces lookup keys: Unicode NFC, case-folded, with runs of
// whitespace collapsed. SanitizeName produces filesystem-safe path
// components for link and directory names.
package textutil
