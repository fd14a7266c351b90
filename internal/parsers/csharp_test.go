package parsers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseCSharp(t *testing.T, src string) *ParseResult {
	t.Helper()
	result, err := NewCSharpParser().Parse("Sample.cs", []byte(src))
	require.NoError(t, err)
	return result
}

func typeByID(t *testing.T, result *ParseResult, id string) TypeDeclaration {
	t.Helper()
	for _, decl := range result.Types {
		if decl.ID() == id {
			return decl
		}
	}
	require.FailNowf(t, "type not found", "no declaration with id %q", id)
	return TypeDeclaration{}
}

func TestCSharpParser_Language(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "csharp", NewCSharpParser().Language())
}

func TestCSharpParser_Counts(t *testing.T) {
	t.Parallel()

	src := `namespace App.Core
{
    public class Worker : Base, IWorker
    {
        private Dependency dep;
        public int Count { get; set; }

        public Result Run(Input input, int n)
        {
            if (n > 0)
            {
                dep.Touch();
            }
            for (var i = 0; i < n; i++) { Log(i); }
            var r = new Result();
            return n > 1 ? r : null;
        }

        private void Log(int i) { }
    }
}
`
	result := parseCSharp(t, src)
	require.Len(t, result.Types, 1)

	worker := result.Types[0]
	assert.Equal(t, "App.Core.Worker", worker.ID())
	assert.Equal(t, KindClass, worker.Kind)
	assert.Equal(t, []string{"Base", "IWorker"}, worker.BaseTypes)

	assert.Equal(t, 2, worker.Counts.Methods)
	assert.Equal(t, 10, worker.Counts.Statements)
	assert.Equal(t, 3, worker.Counts.Branches)
	assert.Equal(t, 3, worker.Counts.CallSites)

	assert.Contains(t, worker.References, TypeReference{Text: "Dependency", Role: RoleField})
	assert.Contains(t, worker.References, TypeReference{Text: "int", Role: RoleProperty})
	assert.Contains(t, worker.References, TypeReference{Text: "Result", Role: RoleReturn})
	assert.Contains(t, worker.References, TypeReference{Text: "Input", Role: RoleParameter})
	assert.Contains(t, worker.References, TypeReference{Text: "Result", Role: RoleCreation})

	assert.Contains(t, worker.MemberAccesses, MemberAccess{Receiver: "dep", Name: "Touch"})
	assert.Equal(t, "Dependency", worker.Variables["dep"])
	assert.Equal(t, "Input", worker.Variables["input"])
	assert.NotContains(t, worker.Variables, "r")

	assert.Equal(t, []string{"Run", "Log"}, worker.MethodNames())
	run := worker.Members[2]
	assert.Equal(t, Member{Name: "Run", Role: MemberMethod, Type: "Result", ParamTypes: []string{"Input", "int"}}, run)
}

func TestCSharpParser_Namespaces(t *testing.T) {
	t.Parallel()

	t.Run("BlockScoped", func(t *testing.T) {
		t.Parallel()
		result := parseCSharp(t, `namespace A.B { class X {} }
namespace C { namespace D { class Y {} } }
class Global {}`)

		ids := make([]string, 0, len(result.Types))
		for _, d := range result.Types {
			ids = append(ids, d.ID())
		}
		assert.ElementsMatch(t, []string{"A.B.X", "C.D.Y", "Global"}, ids)
	})

	t.Run("FileScoped", func(t *testing.T) {
		t.Parallel()
		result := parseCSharp(t, `namespace App.Services;

public class OrderService {}
public interface IOrderService {}
`)
		require.Len(t, result.Types, 2)
		assert.Equal(t, "App.Services.OrderService", result.Types[0].ID())
		assert.Equal(t, KindInterface, typeByID(t, result, "App.Services.IOrderService").Kind)
	})

	t.Run("NestedTypes", func(t *testing.T) {
		t.Parallel()
		result := parseCSharp(t, `namespace N
{
    class Outer
    {
        void M() { }
        class Inner
        {
            void A() { }
            void B() { }
        }
    }
}`)
		require.Len(t, result.Types, 2)

		outer := typeByID(t, result, "N.Outer")
		inner := typeByID(t, result, "N.Outer.Inner")
		assert.Equal(t, []string{"Outer"}, inner.Containing)
		assert.Equal(t, "N", inner.Namespace)

		// Direct methods only, but statements include nested bodies.
		assert.Equal(t, 1, outer.Counts.Methods)
		assert.Equal(t, 2, inner.Counts.Methods)
		assert.Equal(t, 3, outer.Counts.Statements)
		assert.Equal(t, 2, inner.Counts.Statements)
	})
}

func TestCSharpParser_Usings(t *testing.T) {
	t.Parallel()

	result := parseCSharp(t, `using System.Text;
using Models = App.Models;
using static System.Math;

class C {}`)

	require.Len(t, result.Usings, 3)
	assert.Equal(t, Using{Namespace: "System.Text"}, result.Usings[0])
	assert.Equal(t, map[string]string{"Models": "App.Models"}, result.Aliases())
	assert.True(t, result.Usings[2].IsStatic)
	assert.Equal(t, "System.Math", result.Usings[2].Namespace)
}

func TestCSharpParser_Declarations(t *testing.T) {
	t.Parallel()

	result := parseCSharp(t, `public partial class P {}
struct S : IComparable {}
record Person(string Name);
class Repo<T> : IRepo<T> where T : class {}
`)

	p := typeByID(t, result, "P")
	assert.True(t, p.IsPartial)
	assert.Equal(t, KindClass, p.Kind)

	s := typeByID(t, result, "S")
	assert.False(t, s.IsPartial)
	assert.Equal(t, KindStruct, s.Kind)
	assert.Equal(t, []string{"IComparable"}, s.BaseTypes)

	assert.Equal(t, KindRecord, typeByID(t, result, "Person").Kind)
	assert.Equal(t, []string{"IRepo<T>"}, typeByID(t, result, "Repo").BaseTypes)
}

func TestCSharpParser_Location(t *testing.T) {
	t.Parallel()

	result := parseCSharp(t, "class Base {}\n\npublic class Impl\n{\n}\n")
	require.Len(t, result.Types, 2)

	base := typeByID(t, result, "Base")
	assert.Equal(t, "Sample.cs", base.Location.FilePath)
	assert.Equal(t, 1, base.Location.StartLine)
	assert.Equal(t, 1, base.Location.StartColumn)

	impl := typeByID(t, result, "Impl")
	assert.Equal(t, 3, impl.Location.StartLine)
	assert.Equal(t, 5, impl.Location.EndLine)
	assert.Equal(t, 2, impl.Location.EndColumn)
}

func TestCSharpParser_ToleratesSyntaxErrors(t *testing.T) {
	t.Parallel()

	result, err := NewCSharpParser().Parse("Broken.cs", []byte("class Ok { void M() { } }\nclass Broken { void M( { }"))
	require.NoError(t, err)
	assert.NotEmpty(t, result.Types)
	assert.Equal(t, "Ok", result.Types[0].ID())
}

func TestTypeDeclaration_ID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		decl TypeDeclaration
		want string
	}{
		{"GlobalNamespace", TypeDeclaration{Name: "A"}, "A"},
		{"Namespaced", TypeDeclaration{Name: "A", Namespace: "X.Y"}, "X.Y.A"},
		{"Nested", TypeDeclaration{Name: "In", Namespace: "X", Containing: []string{"Out"}}, "X.Out.In"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.decl.ID())
		})
	}
}

func TestCounts_Add(t *testing.T) {
	t.Parallel()
	got := Counts{Methods: 1, Statements: 2, Branches: 3, CallSites: 4}.Add(Counts{Methods: 1, Statements: 1, Branches: 1, CallSites: 1})
	assert.Equal(t, Counts{Methods: 2, Statements: 3, Branches: 4, CallSites: 5}, got)
}
