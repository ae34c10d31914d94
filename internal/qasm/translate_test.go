package qasm_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seantiz/qcflow/internal/qasm"
)

const bellCanonical = `OPENQASM 2.0;
include "qelib1.inc";
qreg q[2];
creg c[2];
h q[0];
cx q[0], q[1];
measure q -> c;
`

func lines(s string) []string {
	return strings.Split(s, "\n")
}

func TestNormalizeNewerBell(t *testing.T) {
	in := "OPENQASM 3.0;\ninclude \"stdgates.inc\";\nqubit[2] q;\nbit[2] c;\nh q[0];\ncx q[0], q[1];\nc = measure q;\n"

	res, err := qasm.Normalize(in)
	require.NoError(t, err)
	assert.Equal(t, bellCanonical, res.Text)
	assert.Equal(t, "3.0", res.Version)
	assert.Empty(t, res.Diagnostics)
}

func TestNormalizeCanonicalIsIdempotent(t *testing.T) {
	res, err := qasm.Normalize(bellCanonical)
	require.NoError(t, err)
	assert.Equal(t, bellCanonical, res.Text)

	indented := "\n        OPENQASM 2.0;\n        include \"qelib1.inc\";\n        qreg q[5];\n        creg c[5];\n        h q[0];\n        measure q -> c;\n        "
	res, err = qasm.Normalize(indented)
	require.NoError(t, err)
	assert.Equal(t, indented, res.Text)
}

func TestNormalizeOutputIsFixedPoint(t *testing.T) {
	in := "OPENQASM 3.0;\nqubit[3] r;\nbit[3] m;\nh r[0];\nm = measure r;"
	first, err := qasm.Normalize(in)
	require.NoError(t, err)

	second, err := qasm.Normalize(first.Text)
	require.NoError(t, err)
	assert.Equal(t, first.Text, second.Text)
}

func TestNormalizeCanonicalInjectsInclude(t *testing.T) {
	res, err := qasm.Normalize("OPENQASM 2.0;\nqreg q[1];\ncreg c[1];")
	require.NoError(t, err)
	assert.Equal(t, []string{"OPENQASM 2.0;", qasm.CanonicalInclude, "qreg q[1];", "creg c[1];"}, lines(res.Text))
}

func TestNormalizeRegisterSizing(t *testing.T) {
	for n := 1; n <= 6; n++ {
		for m := 1; m <= 6; m++ {
			in := fmt.Sprintf("OPENQASM 3.0;\nqubit[%d] q;\nbit[%d] c;\n", n, m)
			res, err := qasm.Normalize(in)
			require.NoError(t, err)
			assert.Contains(t, lines(res.Text), fmt.Sprintf("qreg q[%d];", n))
			assert.Contains(t, lines(res.Text), fmt.Sprintf("creg c[%d];", m))
		}
	}
}

func TestNormalizeDeclarations(t *testing.T) {
	tests := []struct {
		line string
		want []string
	}{
		{"qubit[4] data;", []string{"qreg data[4];"}},
		{"qubit[ 3 ]anc;", []string{"qreg anc[3];"}},
		{"qubit a;", []string{"qreg a[1];"}},
		{"qubit[4];", []string{"qreg q[4];"}},
		{"bit[3] out;", []string{"creg out[3];"}},
		{"bit flag;", []string{"creg flag[1];"}},
		{"bit[2] c = measure q;", []string{"creg c[2];", "measure q -> c;"}},
		{"  qubit[2] q; // pair", []string{"  qreg q[2]; // pair"}},
	}
	for _, tt := range tests {
		res, err := qasm.Normalize("OPENQASM 3.0;\n" + tt.line)
		require.NoError(t, err, tt.line)
		got := lines(res.Text)
		for _, want := range tt.want {
			assert.Contains(t, got, want, tt.line)
		}
	}
}

func TestNormalizeMeasurementRewrite(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"c = measure q;", "measure q -> c;"},
		{"c[0] = measure q[0];", "measure q[0] -> c[0];"},
		{"  c=measure q;", "  measure q -> c;"},
		{"c = measure q; // readout", "measure q -> c; // readout"},
	}
	for _, tt := range tests {
		res, err := qasm.Normalize("OPENQASM 3.0;\nqubit[2] q;\nbit[2] c;\n" + tt.line)
		require.NoError(t, err, tt.line)
		got := lines(res.Text)
		assert.Equal(t, tt.want, got[len(got)-1], tt.line)
	}
}

func TestNormalizePassThroughPreservesOrder(t *testing.T) {
	in := "// header comment\nOPENQASM 3.0;\nqubit[2] q;\nbit[2] c;\n/* block\nc = measure q;\n*/\nbarrier q;\nx q[1];\ncx q[1], q[0];\n"
	res, err := qasm.Normalize(in)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"// header comment",
		"OPENQASM 2.0;",
		qasm.CanonicalInclude,
		"qreg q[2];",
		"creg c[2];",
		"/* block",
		"c = measure q;",
		"*/",
		"barrier q;",
		"x q[1];",
		"cx q[1], q[0];",
		"",
	}, lines(res.Text))
}

func TestNormalizeDefaultRegisters(t *testing.T) {
	res, err := qasm.Normalize("OPENQASM 3.0;\ninclude \"stdgates.inc\";\nh q[0];\ncx q[0], q[1];")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"OPENQASM 2.0;",
		qasm.CanonicalInclude,
		"qreg q[2];",
		"creg c[2];",
		"h q[0];",
		"cx q[0], q[1];",
	}, lines(res.Text))

	res, err = qasm.Normalize("OPENQASM 3.0;\nqubit[3] r;\nh r[0];")
	require.NoError(t, err)
	assert.Equal(t, []string{"OPENQASM 2.0;", qasm.CanonicalInclude, "creg c[2];", "qreg r[3];", "h r[0];"}, lines(res.Text))
}

func TestNormalizeDefaultRegistersFollowCustomIncludes(t *testing.T) {
	res, err := qasm.Normalize("OPENQASM 3.0;\ninclude \"mygates.inc\";\nh q[0];")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"OPENQASM 2.0;",
		qasm.CanonicalInclude,
		"include \"mygates.inc\";",
		"qreg q[2];",
		"creg c[2];",
		"h q[0];",
	}, lines(res.Text))
}

func TestNormalizeVersionLineWithTrailingStatement(t *testing.T) {
	res, err := qasm.Normalize("OPENQASM 3; qubit[2] q; ")
	require.NoError(t, err)
	got := lines(res.Text)
	assert.Equal(t, "OPENQASM 2.0;", got[0])
	assert.Contains(t, got, "qreg q[2];")
}

func TestNormalizeUnsupportedConstructsDiagnosed(t *testing.T) {
	in := "OPENQASM 3.0;\nqubit[1] q;\nbit[1] c;\nc[0] = measure q[0];\nif (c == 1) x q[0];\nfor int i in [0:2] { h q[0]; }"
	res, err := qasm.Normalize(in)
	require.NoError(t, err)
	require.Len(t, res.Diagnostics, 2)
	assert.Equal(t, 5, res.Diagnostics[0].Line)
	assert.Equal(t, "if", res.Diagnostics[0].Construct)
	assert.Equal(t, "for", res.Diagnostics[1].Construct)
	assert.Contains(t, lines(res.Text), "if (c == 1) x q[0];")
}

func TestNormalizeMissingVersion(t *testing.T) {
	for _, in := range []string{"", "   \n\t", "INVALID CIRCUIT", "qreg q[2];\nh q[0];", "{malformed: json}", "OPENQASM;"} {
		_, err := qasm.Normalize(in)
		require.Error(t, err, in)
		assert.True(t, errors.Is(err, qasm.ErrMissingVersion), "input %q: got %v", in, err)

		var te *qasm.TranslationError
		require.True(t, errors.As(err, &te))
		assert.Equal(t, in, te.Input)
	}
}

func TestNormalizeUnsupportedVersion(t *testing.T) {
	in := "OPENQASM 4.0;\nqubit q;"
	_, err := qasm.Normalize(in)
	require.ErrorIs(t, err, qasm.ErrUnsupportedVersion)

	var te *qasm.TranslationError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "4.0", te.Version)
	assert.Equal(t, 1, te.Line)
	assert.Contains(t, err.Error(), `"4.0"`)
}

func TestNormalizeMalformedDeclaration(t *testing.T) {
	for _, line := range []string{"qubit[x] q;", "qubit[0] q;", "qubit[2] 1q;", "qubit[2 q;", "bit[-1] c;", "qubit[2] q = measure r;", "bit[2] c = 5;"} {
		in := "OPENQASM 3.0;\n// comment\n" + line
		_, err := qasm.Normalize(in)
		require.ErrorIs(t, err, qasm.ErrMalformedDeclaration, line)

		var te *qasm.TranslationError
		require.True(t, errors.As(err, &te))
		assert.Equal(t, 3, te.Line, line)
		assert.Equal(t, line, te.LineText)
		assert.Equal(t, in, te.Input)
	}
}

func TestNormalizeMalformedMeasurement(t *testing.T) {
	for _, line := range []string{" = measure q;", "c = measure;", "a = b = measure q;", "c = measure measure q;", "bit[2] c = measure ;"} {
		_, err := qasm.Normalize("OPENQASM 3.0;\n" + line)
		require.ErrorIs(t, err, qasm.ErrMalformedMeasurement, line)

		var te *qasm.TranslationError
		require.True(t, errors.As(err, &te))
		assert.Equal(t, 2, te.Line, line)
		assert.Contains(t, err.Error(), "line 2")
	}
}

func TestNormalizeLeadingInlineBlockComment(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"/* note */ c = measure q;", "/* note */ measure q -> c;"},
		{"  /* readout */c = measure q; // all", "  /* readout */ measure q -> c; // all"},
		{"/* only a comment */", "/* only a comment */"},
	}
	for _, tt := range tests {
		res, err := qasm.Normalize("OPENQASM 3.0;\nqubit[2] q;\nbit[2] c;\n" + tt.line)
		require.NoError(t, err, tt.line)
		got := lines(res.Text)
		assert.Equal(t, tt.want, got[len(got)-1], tt.line)
	}

	res, err := qasm.Normalize("OPENQASM 3.0;\n/* data */ qubit[3] d;")
	require.NoError(t, err)
	assert.Contains(t, lines(res.Text), "/* data */ qreg d[3];")
}

func TestNormalizeVersionInsideBlockCommentIgnored(t *testing.T) {
	res, err := qasm.Normalize("/*\nOPENQASM 4.0;\n*/\nOPENQASM 3.0;\nqubit[2] q;\nbit[2] c;")
	require.NoError(t, err)
	assert.Equal(t, "3.0", res.Version)
	assert.Equal(t, []string{"/*", "OPENQASM 4.0;", "*/", "OPENQASM 2.0;", qasm.CanonicalInclude, "qreg q[2];", "creg c[2];"}, lines(res.Text))

	_, err = qasm.Normalize("/* OPENQASM 3.0;\n*/\nqreg q[1];")
	require.ErrorIs(t, err, qasm.ErrMissingVersion)
}
