package containerregistry

import (
	"context"
	"fmt"
	"strings"

	ctypes "oras.land/oras-go/pkg/content"
	"oras.land/oras-go/pkg/oras"
	"oras.land/oras-go/pkg/registry/remote"
	"oras.land/oras-go/pkg/registry/remote/auth"

	"k8s.io/klog/v2"

	"github.com/x8labs/cloudcore/pkg/apierr"
	"github.com/x8labs/cloudcore/pkg/model"
)

// Endpoint names an OCI Distribution registry this provider pushes to and
// pulls from.
type Endpoint struct {
	Host     string // e.g. "123456789.dkr.ecr.us-east-1.amazonaws.com"
	RepoPath string // e.g. "myservice"
	Username string
	Password string // or a bearer token, depending on provider
}

// OrasCore is the OCI-Distribution transfer layer shared by the ECR, ACR,
// and GAR providers (spec §3 domain stack: "the one client the teacher's
// deps already support end-to-end for registries").
type OrasCore struct {
	providerName string
	endpoint     Endpoint
}

func NewOrasCore(providerName string, endpoint Endpoint) *OrasCore {
	return &OrasCore{providerName: providerName, endpoint: endpoint}
}

func (o *OrasCore) repository(ctx context.Context) (*remote.Repository, error) {
	ref := o.endpoint.Host + "/" + o.endpoint.RepoPath
	repo, err := remote.NewRepository(ref)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindBadRequest, err, "invalid registry reference %q", ref)
	}
	repo.Client = &auth.Client{
		Credential: auth.StaticCredential(o.endpoint.Host, auth.Credential{
			Username: o.endpoint.Username,
			Password: o.endpoint.Password,
		}),
	}
	return repo, nil
}

// Push copies every layer of localImage (already present in the local
// Docker/OCI layout store) into the registry under the image name's tag.
func (o *OrasCore) Push(ctx context.Context, localImage string) (Item, error) {
	repo, err := o.repository(ctx)
	if err != nil {
		return Item{}, err
	}
	tag := tagOf(localImage)

	store, err := ctypes.NewOCI(localImage)
	if err != nil {
		return Item{}, apierr.Wrap(apierr.KindBadRequest, err, "open local OCI layout %q", localImage)
	}

	klog.V(1).Infof("containerregistry(%s): pushing %s:%s to %s", o.providerName, localImage, tag, o.endpoint.Host)
	desc, err := oras.Copy(ctx, store, tag, repo, tag)
	if err != nil {
		return Item{}, apierr.Wrap(apierr.KindBadRequest, err, "push %s:%s", localImage, tag)
	}

	return Item{
		Ref:    model.RegistryRef{Provider: o.providerName, Name: o.endpoint.RepoPath, URI: o.endpoint.Host + "/" + o.endpoint.RepoPath},
		Image:  fmt.Sprintf("%s/%s:%s", o.endpoint.Host, o.endpoint.RepoPath, tag),
		Digest: desc.Digest.String(),
	}, nil
}

// Pull copies image:tag from the registry into a local OCI layout store
// and returns its resolved digest.
func (o *OrasCore) Pull(ctx context.Context, image, tag string) (Item, error) {
	repo, err := o.repository(ctx)
	if err != nil {
		return Item{}, err
	}
	if tag == "" {
		tag = "latest"
	}
	store, err := ctypes.NewOCI(image)
	if err != nil {
		return Item{}, apierr.Wrap(apierr.KindBadRequest, err, "open local OCI layout %q", image)
	}

	desc, err := oras.Copy(ctx, repo, tag, store, tag)
	if err != nil {
		return Item{}, apierr.Wrap(apierr.KindNotFound, err, "pull %s:%s", image, tag)
	}
	return Item{
		Ref:    model.RegistryRef{Provider: o.providerName, Name: o.endpoint.RepoPath, URI: o.endpoint.Host + "/" + o.endpoint.RepoPath},
		Image:  fmt.Sprintf("%s/%s:%s", o.endpoint.Host, o.endpoint.RepoPath, tag),
		Digest: desc.Digest.String(),
	}, nil
}

// Tag copies an existing manifest to a new tag within the same repository.
func (o *OrasCore) Tag(ctx context.Context, image, sourceTag, destTag string) (Item, error) {
	repo, err := o.repository(ctx)
	if err != nil {
		return Item{}, err
	}
	desc, err := oras.Copy(ctx, repo, sourceTag, repo, destTag)
	if err != nil {
		return Item{}, apierr.Wrap(apierr.KindNotFound, err, "tag %s:%s as %s", image, sourceTag, destTag)
	}
	return Item{
		Ref:    model.RegistryRef{Provider: o.providerName, Name: o.endpoint.RepoPath, URI: o.endpoint.Host + "/" + o.endpoint.RepoPath},
		Image:  fmt.Sprintf("%s/%s:%s", o.endpoint.Host, o.endpoint.RepoPath, destTag),
		Digest: desc.Digest.String(),
	}, nil
}

// Delete removes the manifest tagged with tag from the registry.
func (o *OrasCore) Delete(ctx context.Context, image, tag string) error {
	repo, err := o.repository(ctx)
	if err != nil {
		return err
	}
	desc, err := repo.Resolve(ctx, tag)
	if err != nil {
		return apierr.Wrap(apierr.KindNotFound, err, "resolve %s:%s", image, tag)
	}
	if err := repo.Manifests().Delete(ctx, desc); err != nil {
		return apierr.Wrap(apierr.KindBadRequest, err, "delete %s:%s", image, tag)
	}
	return nil
}

// List enumerates tags under repoPrefix via the Distribution tag-list API.
func (o *OrasCore) List(ctx context.Context, repoPrefix string) ([]string, error) {
	repo, err := o.repository(ctx)
	if err != nil {
		return nil, err
	}
	var tags []string
	err = repo.Tags(ctx, "", func(page []string) error {
		for _, t := range page {
			if repoPrefix == "" || strings.HasPrefix(t, repoPrefix) {
				tags = append(tags, t)
			}
		}
		return nil
	})
	if err != nil {
		return nil, apierr.Wrap(apierr.KindBadRequest, err, "list tags under %q", repoPrefix)
	}
	return tags, nil
}

// Digests resolves the content digest for every tag of image.
func (o *OrasCore) Digests(ctx context.Context, image string) ([]Digest, error) {
	repo, err := o.repository(ctx)
	if err != nil {
		return nil, err
	}
	var out []Digest
	err = repo.Tags(ctx, "", func(page []string) error {
		for _, t := range page {
			desc, err := repo.Resolve(ctx, t)
			if err != nil {
				continue
			}
			out = append(out, Digest{Tag: t, Digest: desc.Digest.String()})
		}
		return nil
	})
	if err != nil {
		return nil, apierr.Wrap(apierr.KindBadRequest, err, "list digests for %q", image)
	}
	return out, nil
}

func tagOf(localImage string) string {
	if i := strings.LastIndex(localImage, ":"); i >= 0 && !strings.Contains(localImage[i:], "/") {
		return localImage[i+1:]
	}
	return "latest"
}
